package db

// schemaDDL holds the idempotent DDL for the mirror tables, keyed by the
// natural keys the sync engine upserts against. MySQL utf8mb4 throughout;
// monetary columns are DECIMAL(15,2).
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS agreements (
		agreement_number VARCHAR(20) NOT NULL,
		grant_token      VARCHAR(128) NOT NULL,
		name             VARCHAR(255) NOT NULL DEFAULT '',
		active           TINYINT(1) NOT NULL DEFAULT 1,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS accounting_years (
		year_id          VARCHAR(20) NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		from_date        DATE NULL,
		to_date          DATE NULL,
		closed           TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (year_id, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS accounting_periods (
		period_number    INT NOT NULL,
		year_id          VARCHAR(20) NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		from_date        DATE NULL,
		to_date          DATE NULL,
		barred           TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (period_number, year_id, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS accounting_entries (
		entry_number     BIGINT NOT NULL,
		year_id          VARCHAR(20) NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		period_number    INT NOT NULL,
		account_number   INT NOT NULL,
		amount           DECIMAL(15,2) NOT NULL DEFAULT 0,
		amount_base      DECIMAL(15,2) NOT NULL DEFAULT 0,
		currency         VARCHAR(3) NOT NULL DEFAULT '',
		entry_date       DATE NULL,
		entry_text       TEXT NULL,
		entry_type       VARCHAR(40) NOT NULL DEFAULT '',
		voucher_number   INT NULL,
		PRIMARY KEY (entry_number, year_id, agreement_number),
		KEY idx_entries_period (agreement_number, year_id, period_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS accounting_totals (
		account_number   INT NOT NULL,
		year_id          VARCHAR(20) NOT NULL,
		period_number    INT NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		total_base       DECIMAL(15,2) NOT NULL DEFAULT 0,
		PRIMARY KEY (account_number, year_id, period_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS invoices (
		agreement_number     VARCHAR(20) NOT NULL,
		invoice_number       INT NOT NULL,
		draft_invoice_number INT NULL,
		customer_number      INT NOT NULL DEFAULT 0,
		customer_name        VARCHAR(255) NOT NULL DEFAULT '',
		currency             VARCHAR(3) NOT NULL DEFAULT '',
		invoice_date         DATE NULL,
		due_date             DATE NULL,
		net_amount           DECIMAL(15,2) NOT NULL DEFAULT 0,
		gross_amount         DECIMAL(15,2) NOT NULL DEFAULT 0,
		vat_amount           DECIMAL(15,2) NOT NULL DEFAULT 0,
		remainder            DECIMAL(15,2) NOT NULL DEFAULT 0,
		payment_status       VARCHAR(10) NOT NULL DEFAULT 'pending',
		pdf_url              VARCHAR(512) NOT NULL DEFAULT '',
		PRIMARY KEY (agreement_number, invoice_number),
		KEY idx_invoices_draft (agreement_number, draft_invoice_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS invoice_lines (
		agreement_number VARCHAR(20) NOT NULL,
		invoice_number   INT NOT NULL,
		customer_number  INT NOT NULL DEFAULT 0,
		line_number      INT NOT NULL,
		product_number   VARCHAR(40) NOT NULL DEFAULT '',
		description      TEXT NULL,
		quantity         DECIMAL(15,4) NOT NULL DEFAULT 0,
		unit_net_price   DECIMAL(15,2) NOT NULL DEFAULT 0,
		discount_pct     DECIMAL(7,4) NOT NULL DEFAULT 0,
		total_net_amount DECIMAL(15,2) NOT NULL DEFAULT 0,
		PRIMARY KEY (agreement_number, invoice_number, customer_number, line_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS voucher_pdf_availability (
		voucher_number   INT NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		available        TINYINT(1) NOT NULL DEFAULT 0,
		checked_at       DATETIME NOT NULL,
		PRIMARY KEY (voucher_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS sync_logs (
		id            BIGINT NOT NULL AUTO_INCREMENT,
		entity        VARCHAR(100) NOT NULL,
		operation     VARCHAR(40) NOT NULL DEFAULT 'sync',
		record_count  INT NOT NULL DEFAULT 0,
		status        VARCHAR(10) NOT NULL,
		error_message TEXT NULL,
		started_at    DATETIME NOT NULL,
		completed_at  DATETIME NULL,
		duration_ms   INT NULL,
		PRIMARY KEY (id),
		KEY idx_sync_logs_entity (entity, started_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS customers (
		customer_number  INT NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		name             VARCHAR(255) NOT NULL DEFAULT '',
		email            VARCHAR(255) NOT NULL DEFAULT '',
		currency         VARCHAR(3) NOT NULL DEFAULT '',
		payment_terms    INT NOT NULL DEFAULT 0,
		balance          DECIMAL(15,2) NOT NULL DEFAULT 0,
		PRIMARY KEY (customer_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS suppliers (
		supplier_number  INT NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		name             VARCHAR(255) NOT NULL DEFAULT '',
		email            VARCHAR(255) NOT NULL DEFAULT '',
		currency         VARCHAR(3) NOT NULL DEFAULT '',
		supplier_group   INT NOT NULL DEFAULT 0,
		PRIMARY KEY (supplier_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS products (
		product_number   VARCHAR(40) NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		name             VARCHAR(255) NOT NULL DEFAULT '',
		product_group    INT NOT NULL DEFAULT 0,
		sales_price      DECIMAL(15,2) NOT NULL DEFAULT 0,
		cost_price       DECIMAL(15,2) NOT NULL DEFAULT 0,
		barred           TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (product_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS accounts (
		account_number   INT NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		name             VARCHAR(255) NOT NULL DEFAULT '',
		account_type     VARCHAR(40) NOT NULL DEFAULT '',
		balance          DECIMAL(15,2) NOT NULL DEFAULT 0,
		barred           TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (account_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS payment_terms (
		payment_terms_number INT NOT NULL,
		agreement_number     VARCHAR(20) NOT NULL,
		name                 VARCHAR(255) NOT NULL DEFAULT '',
		days_of_credit       INT NOT NULL DEFAULT 0,
		payment_terms_type   VARCHAR(40) NOT NULL DEFAULT '',
		PRIMARY KEY (payment_terms_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS product_groups (
		group_number     INT NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		name             VARCHAR(255) NOT NULL DEFAULT '',
		PRIMARY KEY (group_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS supplier_groups (
		group_number     INT NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		name             VARCHAR(255) NOT NULL DEFAULT '',
		PRIMARY KEY (group_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS vat_accounts (
		vat_code         VARCHAR(10) NOT NULL,
		agreement_number VARCHAR(20) NOT NULL,
		name             VARCHAR(255) NOT NULL DEFAULT '',
		rate_pct         DECIMAL(7,4) NOT NULL DEFAULT 0,
		vat_type         VARCHAR(40) NOT NULL DEFAULT '',
		account_number   INT NOT NULL DEFAULT 0,
		barred           TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (vat_code, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS departments (
		department_number INT NOT NULL,
		agreement_number  VARCHAR(20) NOT NULL,
		name              VARCHAR(255) NOT NULL DEFAULT '',
		PRIMARY KEY (department_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

	`CREATE TABLE IF NOT EXISTS departmental_distributions (
		distribution_number INT NOT NULL,
		agreement_number    VARCHAR(20) NOT NULL,
		name                VARCHAR(255) NOT NULL DEFAULT '',
		distribution_type   VARCHAR(40) NOT NULL DEFAULT '',
		PRIMARY KEY (distribution_number, agreement_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
}

// yearUpsertSQL inserts or updates an accounting year on its natural key.
const yearUpsertSQL = `
	INSERT INTO accounting_years (year_id, agreement_number, from_date, to_date, closed)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE from_date = VALUES(from_date), to_date = VALUES(to_date),
		closed = VALUES(closed);`

// periodUpsertSQL inserts or updates an accounting period on its natural key.
const periodUpsertSQL = `
	INSERT INTO accounting_periods (period_number, year_id, agreement_number, from_date, to_date, barred)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE from_date = VALUES(from_date), to_date = VALUES(to_date),
		barred = VALUES(barred);`

// entryUpsertSQL inserts or updates an accounting entry on its natural key.
const entryUpsertSQL = `
	INSERT INTO accounting_entries (entry_number, year_id, agreement_number, period_number,
		account_number, amount, amount_base, currency, entry_date, entry_text, entry_type, voucher_number)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE period_number = VALUES(period_number),
		account_number = VALUES(account_number), amount = VALUES(amount),
		amount_base = VALUES(amount_base), currency = VALUES(currency),
		entry_date = VALUES(entry_date), entry_text = VALUES(entry_text),
		entry_type = VALUES(entry_type), voucher_number = VALUES(voucher_number);`

// totalUpsertSQL inserts or overwrites an accounting total; totals are
// derived values recomputed each pass, never accumulated.
const totalUpsertSQL = `
	INSERT INTO accounting_totals (account_number, year_id, period_number, agreement_number, total_base)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE total_base = VALUES(total_base);`

// invoiceUpsertSQL inserts or updates an invoice on its natural key.
const invoiceUpsertSQL = `
	INSERT INTO invoices (agreement_number, invoice_number, draft_invoice_number, customer_number,
		customer_name, currency, invoice_date, due_date, net_amount, gross_amount, vat_amount,
		remainder, payment_status, pdf_url)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE draft_invoice_number = VALUES(draft_invoice_number),
		customer_number = VALUES(customer_number), customer_name = VALUES(customer_name),
		currency = VALUES(currency), invoice_date = VALUES(invoice_date),
		due_date = VALUES(due_date), net_amount = VALUES(net_amount),
		gross_amount = VALUES(gross_amount), vat_amount = VALUES(vat_amount),
		remainder = VALUES(remainder), payment_status = VALUES(payment_status),
		pdf_url = VALUES(pdf_url);`

// invoiceDraftDeleteSQL removes the draft row displaced by its booked
// counterpart.
const invoiceDraftDeleteSQL = `
	DELETE FROM invoices
	WHERE agreement_number = ? AND draft_invoice_number = ? AND payment_status = 'draft';`

// invoiceLineDeleteSQL removes all lines of an invoice ahead of wholesale
// replacement.
const invoiceLineDeleteSQL = `
	DELETE FROM invoice_lines WHERE agreement_number = ? AND invoice_number = ?;`

// invoiceLineInsertSQL inserts one invoice line.
const invoiceLineInsertSQL = `
	INSERT INTO invoice_lines (agreement_number, invoice_number, customer_number, line_number,
		product_number, description, quantity, unit_net_price, discount_pct, total_net_amount)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

// voucherAvailabilityUpsertSQL records a document-existence fact for a
// voucher.
const voucherAvailabilityUpsertSQL = `
	INSERT INTO voucher_pdf_availability (voucher_number, agreement_number, available, checked_at)
	VALUES (?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE available = VALUES(available), checked_at = VALUES(checked_at);`

// syncLogInsertSQL appends one consolidated outcome row.
const syncLogInsertSQL = `
	INSERT INTO sync_logs (entity, operation, record_count, status, error_message,
		started_at, completed_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

// agreementsActiveSQL lists the active tenants in registration order.
const agreementsActiveSQL = `
	SELECT agreement_number, grant_token, name, active
	FROM agreements WHERE active = 1 ORDER BY agreement_number;`

// agreementUpsertSQL registers or refreshes a tenant.
const agreementUpsertSQL = `
	INSERT INTO agreements (agreement_number, grant_token, name, active)
	VALUES (?, ?, ?, 1)
	ON DUPLICATE KEY UPDATE grant_token = VALUES(grant_token), name = VALUES(name), active = 1;`

// customerUpsertSQL inserts or updates a customer on its natural key.
const customerUpsertSQL = `
	INSERT INTO customers (customer_number, agreement_number, name, email, currency, payment_terms, balance)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name), email = VALUES(email), currency = VALUES(currency),
		payment_terms = VALUES(payment_terms), balance = VALUES(balance);`

// supplierUpsertSQL inserts or updates a supplier on its natural key.
const supplierUpsertSQL = `
	INSERT INTO suppliers (supplier_number, agreement_number, name, email, currency, supplier_group)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name), email = VALUES(email), currency = VALUES(currency),
		supplier_group = VALUES(supplier_group);`

// productUpsertSQL inserts or updates a product on its natural key.
const productUpsertSQL = `
	INSERT INTO products (product_number, agreement_number, name, product_group, sales_price, cost_price, barred)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name), product_group = VALUES(product_group),
		sales_price = VALUES(sales_price), cost_price = VALUES(cost_price), barred = VALUES(barred);`

// accountUpsertSQL inserts or updates a ledger account on its natural key.
const accountUpsertSQL = `
	INSERT INTO accounts (account_number, agreement_number, name, account_type, balance, barred)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name), account_type = VALUES(account_type),
		balance = VALUES(balance), barred = VALUES(barred);`

// paymentTermUpsertSQL inserts or updates a payment-terms row.
const paymentTermUpsertSQL = `
	INSERT INTO payment_terms (payment_terms_number, agreement_number, name, days_of_credit, payment_terms_type)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name), days_of_credit = VALUES(days_of_credit),
		payment_terms_type = VALUES(payment_terms_type);`

// productGroupUpsertSQL inserts or updates a product group.
const productGroupUpsertSQL = `
	INSERT INTO product_groups (group_number, agreement_number, name)
	VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name);`

// supplierGroupUpsertSQL inserts or updates a supplier group.
const supplierGroupUpsertSQL = `
	INSERT INTO supplier_groups (group_number, agreement_number, name)
	VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name);`

// vatAccountUpsertSQL inserts or updates a VAT account.
const vatAccountUpsertSQL = `
	INSERT INTO vat_accounts (vat_code, agreement_number, name, rate_pct, vat_type, account_number, barred)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name), rate_pct = VALUES(rate_pct),
		vat_type = VALUES(vat_type), account_number = VALUES(account_number), barred = VALUES(barred);`

// departmentUpsertSQL inserts or updates a department.
const departmentUpsertSQL = `
	INSERT INTO departments (department_number, agreement_number, name)
	VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name);`

// distributionUpsertSQL inserts or updates a departmental distribution.
const distributionUpsertSQL = `
	INSERT INTO departmental_distributions (distribution_number, agreement_number, name, distribution_type)
	VALUES (?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE name = VALUES(name), distribution_type = VALUES(distribution_type);`
