package service

import "time"

// Clock supplies the current time so expiry and ordering logic stays
// deterministic in tests.
type Clock func() time.Time
