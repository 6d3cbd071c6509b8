package memory

import (
	"snb_ledger/internal/repository"
)

var (
	_ repository.AccountRepository  = (*AccountRepository)(nil)
	_ repository.CustomerRepository = (*CustomerRepository)(nil)
)
