package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
)

const (
	AuditTransactionCreated   = "TRANSACTION_CREATED"
	AuditTransactionPosted    = "TRANSACTION_POSTED"
	AuditTransactionCancelled = "TRANSACTION_CANCELLED"
	AuditAccountCreated       = "ACCOUNT_CREATED"
	AuditAccountReparented    = "ACCOUNT_REPARENTED"
	AuditAccountStatus        = "ACCOUNT_STATUS_CHANGED"
	AuditTenantCreated        = "TENANT_CREATED"
	AuditTenantStatus         = "TENANT_STATUS_CHANGED"
	AuditError                = "ERROR"
)

// AuditLogger writes one structured record per ledger state change to a
// dedicated "audit" logger.
type AuditLogger struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger.Named("audit"), now: time.Now}
}

func (a *AuditLogger) LogTransaction(eventType string, txn *models.Transaction) {
	var amount int64
	for _, e := range txn.Entries {
		if e.Direction == models.DirectionDebit {
			amount += e.Amount
		}
	}
	a.logger.Info("AUDIT",
		zap.Time("timestamp", a.now().UTC()),
		zap.String("event_type", eventType),
		zap.String("tenant_id", txn.TenantID),
		zap.String("transaction_id", txn.ID),
		zap.String("account_id", txn.AccountID),
		zap.Int64("amount", amount),
		zap.String("currency", txn.Currency),
		zap.String("status", string(txn.Status)),
	)
}

func (a *AuditLogger) LogAccount(eventType string, account *models.Account) {
	a.logger.Info("AUDIT",
		zap.Time("timestamp", a.now().UTC()),
		zap.String("event_type", eventType),
		zap.String("tenant_id", account.TenantID),
		zap.String("account_id", account.ID),
		zap.String("parent_account_id", account.ParentID()),
		zap.String("status", string(account.Status)),
	)
}

func (a *AuditLogger) LogTenant(eventType string, tenant *models.Tenant) {
	a.logger.Info("AUDIT",
		zap.Time("timestamp", a.now().UTC()),
		zap.String("event_type", eventType),
		zap.String("tenant_id", tenant.ID),
		zap.String("status", string(tenant.Status)),
	)
}

func (a *AuditLogger) LogError(operation, tenantID, entityID string, err error) {
	a.logger.Error("AUDIT",
		zap.Time("timestamp", a.now().UTC()),
		zap.String("event_type", AuditError),
		zap.String("operation", operation),
		zap.String("tenant_id", tenantID),
		zap.String("entity_id", entityID),
		zap.String("status", "FAILED"),
		zap.Error(err),
	)
}
