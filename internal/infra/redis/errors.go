package redis

import "errors"

var errReadOnly = errors.New("question source is read-only")
