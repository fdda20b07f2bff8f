package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// TransactionAttributes tags the New Relic transaction started by nrgin with the
// ledger identifiers of the request, and reports server errors.
// Must be installed after nrgin.Middleware; without a transaction it does nothing.
func TransactionAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		txn := nrgin.Transaction(c)
		if txn == nil {
			return
		}

		if ref := c.Param("referenceId"); ref != "" {
			txn.AddAttribute("reference_id", ref)
		}
		if id := c.Param("id"); id != "" {
			txn.AddAttribute("resource_id", id)
		}
		if key := c.GetHeader(idempotencyHeader); key != "" {
			txn.AddAttribute("idempotency_key", key)
		}

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
