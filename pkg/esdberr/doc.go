// Package esdberr defines the error taxonomy shared by every operation of the
// client.
//
//   - RequestBuildError: bad input, never sent to the server
//   - ConnectionError: no reachable node or transport setup failure
//   - DomainError: server-reported business-rule violation, classified by Kind
//   - DecodeError: malformed server payload, fatal to the current call only
//   - DeadlineExceededError: the caller-supplied deadline elapsed
//   - ErrSessionClosed: ack/nack against a terminated subscription session
//
// Use errors.Is with the sentinels and errors.As with the typed errors:
//
//	if errors.Is(err, esdberr.ErrWrongExpectedVersion) {
//		// reload and retry the command
//	}
//
//	var de *esdberr.DomainError
//	if errors.As(err, &de) && de.Kind == esdberr.KindNotLeader {
//		fmt.Println("leader is", de.LeaderEndpoint)
//	}
package esdberr
