package port

import "context"

// Treasury 利润收割目的地
type Treasury interface {
	// DeployedCapital 当前部署的本金（USD），收割时保留
	DeployedCapital() float64

	// SendFunds 将收割的利润转出到金库地址
	SendFunds(ctx context.Context, amountUSD float64) error
}
