package weights

import "errors"

// ErrNeedAtLeastOneOrder is returned when a batch has no usable order.
var ErrNeedAtLeastOneOrder = errors.New("training needs at least one scored order")
