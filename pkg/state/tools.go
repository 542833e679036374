package state

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/germanamz/relay/pkg/tools/toolbox"
)

// Tools returns a ToolBox with get, set and list tools over whatever store
// the calling run carries. Tool names are {namespace}_state_get,
// {namespace}_state_set and {namespace}_state_list.
func Tools(namespace string) *toolbox.ToolBox {
	return toolbox.MustNew(
		toolbox.Tool{
			Name:        namespace + "_state_get",
			Description: "Get a value from the shared state store by key.",
			Params:      []toolbox.Param{{Name: "key", Type: toolbox.TypeString, Description: "state key"}},
			OutputType:  toolbox.TypeAny,
			Handler:     handleGet,
		},
		toolbox.Tool{
			Name:        namespace + "_state_set",
			Description: "Set a value in the shared state store.",
			Params: []toolbox.Param{
				{Name: "key", Type: toolbox.TypeString, Description: "state key"},
				{Name: "value", Type: toolbox.TypeAny, Description: "any JSON value"},
			},
			OutputType: toolbox.TypeString,
			Handler:    handleSet,
		},
		toolbox.Tool{
			Name:        namespace + "_state_list",
			Description: "List all keys in the shared state store.",
			OutputType:  toolbox.TypeArray,
			Handler:     handleList,
		},
	)
}

var errNoStore = errors.New("no state store attached to this run")

func handleGet(_ context.Context, in toolbox.Input) (any, error) {
	if in.State == nil {
		return nil, errNoStore
	}

	key := in.String("key")
	v, ok := in.State.Get(key)
	if !ok {
		return nil, fmt.Errorf("key not found: %s", key)
	}

	return v, nil
}

func handleSet(_ context.Context, in toolbox.Input) (any, error) {
	if in.State == nil {
		return nil, errNoStore
	}

	in.State.Set(in.String("key"), in.Args["value"])

	return "ok", nil
}

func handleList(_ context.Context, in toolbox.Input) (any, error) {
	if in.State == nil {
		return nil, errNoStore
	}

	snap := in.State.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}
