package seal

import "errors"

var errShortSealed = errors.New("seal: sealed blob shorter than nonce size")
