package scavenge

// Result is the terminal status of a scavenge command.
type Result string

const (
	// ResultSuccess means the run reached Done.
	ResultSuccess Result = "Success"
	// ResultStopped means the run was cancelled cooperatively and will
	// resume from its checkpoint next time.
	ResultStopped Result = "Stopped"
	// ResultErrored means the run failed; the error was reported verbatim.
	ResultErrored Result = "Errored"
	// ResultInterrupted means the run's context was cancelled from outside
	// rather than by Runner.Stop; the checkpoint carries the resumption point.
	ResultInterrupted Result = "Interrupted"
	// ResultUnauthorized is reserved for the embedding server's access
	// checks.
	ResultUnauthorized Result = "Unauthorized"
	// ResultInProgress rejects a second concurrent start.
	ResultInProgress Result = "InProgress"
	// ResultInvalidScavengeID rejects a stop with a stale or unknown id.
	ResultInvalidScavengeID Result = "InvalidScavengeId"
)
