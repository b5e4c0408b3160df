package postgres

const (
	qBalance = `
		SELECT balance::NUMERIC FROM ledger.balances
		WHERE token = $1 AND account = $2`

	qAllowance = `
		SELECT allowance::NUMERIC FROM ledger.allowances
		WHERE token = $1 AND owner = $2 AND spender = $3`

	qEnsureBalance = `
		INSERT INTO ledger.balances (token, account, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (token, account) DO NOTHING`

	qLockBalances = `
		SELECT account, balance::NUMERIC FROM ledger.balances
		WHERE token = $1 AND account = ANY($2::TEXT[])
		ORDER BY account
		FOR UPDATE`

	qDebitBalance = `
		UPDATE ledger.balances
		SET balance = balance - $3::NUMERIC
		WHERE token = $1 AND account = $2`

	qCreditBalance = `
		INSERT INTO ledger.balances (token, account, balance)
		VALUES ($1, $2, $3::NUMERIC)
		ON CONFLICT (token, account) DO UPDATE
		SET balance = ledger.balances.balance + EXCLUDED.balance`

	qLockAllowance = `
		SELECT allowance::NUMERIC FROM ledger.allowances
		WHERE token = $1 AND owner = $2 AND spender = $3
		FOR UPDATE`

	qUpsertAllowance = `
		INSERT INTO ledger.allowances (token, owner, spender, allowance)
		VALUES ($1, $2, $3, $4::NUMERIC)
		ON CONFLICT (token, owner, spender) DO UPDATE
		SET allowance = EXCLUDED.allowance`

	qGenesisApplied = `
		SELECT EXISTS (SELECT 1 FROM ledger.genesis)`

	qMarkGenesis = `
		INSERT INTO ledger.genesis (applied, allocations)
		VALUES (TRUE, $1)`
)
