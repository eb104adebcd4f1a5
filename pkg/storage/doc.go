// Package storage owns the files jiraharvest writes.
//
// JSONLSink is the corpus: an append-only file of one JSON record per line,
// opened once per run and never truncated. WriteFileAtomic replaces small
// documents (the checkpoint) through a synced temporary file and a rename.
//
//	sink, err := storage.OpenJSONL("apache_issues_corpus.jsonl", true)
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	if err := sink.Append(rec); err != nil {
//	    return err
//	}
//	return sink.Sync()
package storage
