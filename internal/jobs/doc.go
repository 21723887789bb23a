/*
Package jobs runs and tracks media conversion jobs.

A job is keyed by the object key of the uploaded original. Its record moves
from processing to exactly one of completed or failure, and a terminal
record is never overwritten:

	(none) -> processing -> completed
	                     -> failure

# Components

  - Converter performs one job: it short-circuits originals already within
    the budget, otherwise downloads, classifies, re-encodes through a
    SizeTargeter and uploads to processed/<name>.jpg|.mp4.
  - Store persists records. RedisStore uses WATCH/MULTI for the terminal
    guard and a native TTL; SQLiteStore serves single-node deployments.
  - Queue hosts jobs on asynq. Task IDs are derived from the source key, so
    a second trigger for the same upload does not start a second job.
  - StatusResolver turns records (or, without a record, storage contents)
    into the pollable status shapes.
*/
package jobs
