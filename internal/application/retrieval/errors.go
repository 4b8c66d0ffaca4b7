package retrieval

import "errors"

// ErrEmptyQuery 检索文本为空
var ErrEmptyQuery = errors.New("retrieval query is empty")
