package hostsession

// JobHandle is a caller's view of one in-flight job on a HostClient.
// Rust's original (original_source/server-rs/src/hostclient.rs) kills the
// job automatically when a JobHandle is dropped; Go has no destructors,
// so callers that want that behaviour must call MarkKillOnClose and then
// defer Close explicitly.
type JobHandle struct {
	ID uint64

	client     *HostClient
	recv       <-chan Envelope
	shouldKill bool
}

// MarkKillOnClose requests that Close send a kill message for this job
// if it is still outstanding, mirroring should_kill in the original.
func (j *JobHandle) MarkKillOnClose() {
	j.shouldKill = true
}

// Recv returns the next envelope the agent sent for this job, or
// ok=false once the job has been released (Close was called, or the
// connection was closed). A Success or Failure reply does not release
// the job by itself.
func (j *JobHandle) Recv() (env Envelope, ok bool) {
	env, ok = <-j.recv
	return
}

// Close releases the job's sink and, if MarkKillOnClose was called,
// tells the agent to terminate the job.
func (j *JobHandle) Close() error {
	j.client.releaseJob(j.ID)
	if j.shouldKill {
		return j.client.sendKill(j.ID)
	}
	return nil
}
