// Package harvester is the ingestion loop.
//
// For each configured source it loads the checkpointed offset, requests the
// page starting there, appends the normalized records to the sink, syncs,
// and only then advances and saves the checkpoint. A source ends Exhausted
// when its offset reaches the total the server reports, or Halted when a
// fetch, write or checkpoint save fails for good. A halted source keeps its
// checkpoint and the run moves on to the next source, except after a sink
// failure, which halts everything that remains.
//
// Delivery is at least once: a crash between the sync and the checkpoint
// save repeats that page on the next run.
package harvester
