// Package party holds the party-planning demo tools. They answer from small
// built-in tables so demos run without network access.
package party

import (
	"context"
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/tools/toolbox"
)

type venue struct {
	Name   string
	Rating float64
}

func (v venue) String() string { return fmt.Sprintf("%s (Rating: %.1f)", v.Name, v.Rating) }

var restaurants = map[string]venue{
	"italian":  {"Bella Napoli", 4.9},
	"japanese": {"Sakura Garden", 4.8},
	"mexican":  {"Casa del Sol", 4.7},
	"indian":   {"Spice Route", 4.8},
	"french":   {"Le Petit Bistro", 4.6},
}

var caterers = map[string]venue{
	"new york":    {"NYC Elite Catering", 4.9},
	"los angeles": {"LA Gourmet Events", 4.8},
	"chicago":     {"Windy City Catering", 4.7},
}

var defaultCaterer = venue{"Local Best Catering", 4.5}

var menus = map[string]string{
	"casual":   "Finger foods, pizza, chips with dips, and refreshing drinks.",
	"formal":   "3-course dinner: appetizer salad, main course with wine, and dessert.",
	"birthday": "Custom cake, finger sandwiches, fruit platter, and party snacks.",
	"brunch":   "Eggs benedict, fresh pastries, mimosas, and fruit bowls.",
	"bbq":      "Grilled burgers, hot dogs, corn on the cob, and coleslaw.",
}

var themes = map[string]string{
	"retro":       "80s Throwback Party: Neon decorations, disco ball, vintage arcade games, and synth-pop playlist.",
	"tropical":    "Hawaiian Luau: Tiki torches, tropical flowers, fruity cocktails, and beach-themed games.",
	"elegant":     "Gatsby Glamour: Art deco decorations, jazz music, champagne tower, and black-tie dress code.",
	"movie night": "Hollywood Premiere: Red carpet entrance, popcorn bar, movie posters, and award ceremony games.",
	"garden":      "Secret Garden Party: Fairy lights, floral arrangements, outdoor games, and afternoon tea.",
}

func key(in toolbox.Input, name string) string {
	return strings.ToLower(strings.TrimSpace(in.String(name)))
}

// New returns restaurant_finder, suggest_menu, catering_service_finder and
// party_theme_generator.
func New() *toolbox.ToolBox {
	return toolbox.MustNew(
		toolbox.Tool{
			Name:        "restaurant_finder",
			Description: "Returns the highest-rated restaurant for a given cuisine type.",
			Params: []toolbox.Param{
				{Name: "cuisine", Type: toolbox.TypeString, Description: "the type of cuisine (e.g. Italian, Japanese, Mexican)"},
			},
			OutputType: toolbox.TypeString,
			Handler: func(_ context.Context, in toolbox.Input) (any, error) {
				if r, ok := restaurants[key(in, "cuisine")]; ok {
					return r.String(), nil
				}
				return "No restaurant found for this cuisine type.", nil
			},
		},
		toolbox.Tool{
			Name:        "suggest_menu",
			Description: "Suggests a menu based on the occasion.",
			Params: []toolbox.Param{
				{Name: "occasion", Type: toolbox.TypeString, Description: "the type of occasion (casual, formal, birthday, brunch, bbq)"},
			},
			OutputType: toolbox.TypeString,
			Handler: func(_ context.Context, in toolbox.Input) (any, error) {
				if m, ok := menus[key(in, "occasion")]; ok {
					return m, nil
				}
				return "Custom menu based on your preferences.", nil
			},
		},
		toolbox.Tool{
			Name:        "catering_service_finder",
			Description: "Returns the highest-rated catering service in a given location.",
			Params: []toolbox.Param{
				{Name: "location", Type: toolbox.TypeString, Description: "the city or area to search"},
			},
			OutputType: toolbox.TypeString,
			Handler: func(_ context.Context, in toolbox.Input) (any, error) {
				if c, ok := caterers[key(in, "location")]; ok {
					return c.String(), nil
				}
				return defaultCaterer.String(), nil
			},
		},
		toolbox.Tool{
			Name:        "party_theme_generator",
			Description: "Suggests a party theme with decoration and activity ideas for a category.",
			Params: []toolbox.Param{
				{Name: "category", Type: toolbox.TypeString, Description: "the kind of theme (retro, tropical, elegant, movie night, garden)"},
			},
			OutputType: toolbox.TypeString,
			Handler: func(_ context.Context, in toolbox.Input) (any, error) {
				if th, ok := themes[key(in, "category")]; ok {
					return th, nil
				}
				return "Custom theme available! Try 'retro', 'tropical', 'elegant', 'movie night', or 'garden'.", nil
			},
		},
	)
}
