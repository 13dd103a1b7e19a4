package importer

import "github.com/pkg/errors"

// ErrTooManyProviders is the reason logged when ShouldAccept rejects a
// connecting block provider because maxProviders is already reached.
var ErrTooManyProviders = errors.New("importer: too many providers")
