package sink

import "errors"

var errMissingPayload = errors.New("record payload missing for kind")
