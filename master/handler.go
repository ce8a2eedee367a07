package master

// AssociationHandler supplies association-scoped facts the runner cannot
// derive on its own, grounded on the original_source Rust
// `AssociationHandler` trait (examples/master/src/master/handlers.rs):
// chiefly a clock source for outgoing TimeSync writes. A nil
// AssociationHandler falls back to the local wall clock.
type AssociationHandler interface {
	// CurrentTime returns the timestamp to write back to the outstation
	// during a TimeSync task. Returning ok=false makes the runner fall
	// back to time.Now().
	CurrentTime() (unixMillis int64, ok bool)
}

// AssociationInformation receives observational callbacks about an
// association's task and communication lifecycle, grounded on the
// original_source `AssociationInformation` trait, generalized the way
// the teacher splits `part5.Monitor` (data) from `part5.Delegate`
// (lifecycle) into two single-purpose capability interfaces instead of
// one large one.
type AssociationInformation interface {
	TaskStart(kind TaskKind)
	TaskSuccess(kind TaskKind)
	TaskFail(kind TaskKind, err error)
	UnsolicitedResponse()
}

// NopAssociationInformation implements AssociationInformation with no-op
// methods, suitable for embedding.
type NopAssociationInformation struct{}

func (NopAssociationInformation) TaskStart(TaskKind)         {}
func (NopAssociationInformation) TaskSuccess(TaskKind)       {}
func (NopAssociationInformation) TaskFail(TaskKind, error)   {}
func (NopAssociationInformation) UnsolicitedResponse()       {}
