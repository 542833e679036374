// Package rag implements retrieval over a local document collection: a
// directory loader, a sentence-aware splitter, embedding functions, a
// chromem-go backed Index and a tool that exposes the index to agents.
//
// The ingestion path is LoadDir → Splitter.SplitDocuments → Index.Add; the
// query path is Index.Query, usually through Tool.
package rag
