package rpcsvc

import "github.com/pkg/errors"

// ErrTooManyClients is the reason logged when ShouldAccept rejects a
// connecting client because maxClients is already reached.
var ErrTooManyClients = errors.New("rpcsvc: too many clients")
