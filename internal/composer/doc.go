// Package composer runs one news digest composition end to end.
//
// A run moves through a fixed sequence of states:
//
//	initialized -> keywords_extracted -> news_fetched -> ingested -> composed
//
// and reaches failed from any of them on an unrecoverable error. Keyword
// extraction is the only collaborator whose failure is fatal: a search
// failure drops that focus point's articles, ingestion absorbs article and
// chunk failures, and a retrieval failure produces a summary block that
// carries an error instead of articles.
//
// Compose never returns an error and never panics. The caller gets a Result
// holding either a Report or an ErrorEnvelope with the session id and a
// timestamp.
//
// Example:
//
//	c, err := composer.New(composer.Deps{
//		Keywords: keywords.NewExtractor(llm),
//		Search:   search,
//		Indexer:  idx,
//		Searcher: srch,
//		History:  history,
//	}, composer.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	res := c.Compose(ctx, composer.Request{
//		Company:     "Acme Motors",
//		FocusPoints: []string{"battery technology", "pricing"},
//	})
//	out, _ := json.Marshal(res)
package composer
