package monitor

import "perparb/internal/application/port"

type FundingFeed = port.FundingFeed

type Repository = port.Repository
