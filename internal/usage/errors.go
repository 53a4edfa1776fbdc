package usage

import "errors"

var ErrCorruptRecord = errors.New("corrupt runtime record")
