package svc

import "errors"

// ErrNoFeedsEnabled 错误：没有任何可用的资金费率源
var ErrNoFeedsEnabled = errors.New("no funding feeds enabled")

// ErrNoAdapters 错误：没有任何可用的交易所账户适配器
var ErrNoAdapters = errors.New("no exchange adapters available")
