package client

import "errors"

var (
	// ErrNoCoordinator means no server answered an assignment broadcast;
	// either no leader is elected yet or the cluster is unreachable.
	ErrNoCoordinator = errors.New("no coordinator answered")

	// ErrNoStatus means no server answered a task status query.
	ErrNoStatus = errors.New("no server answered the status query")

	// ErrTaskFailed means the assigned server reported a transform failure.
	ErrTaskFailed = errors.New("task failed on server")

	// ErrVerificationFailed means the returned payload did not carry the
	// expected embedded parameter; treated as a server-side failure.
	ErrVerificationFailed = errors.New("result verification failed")
)
