package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier.
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier with a
// prefix, e.g. `inv_0ujsswThIGTUYm2K8FjOOfXtY1K`.
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	UUID_PREFIX_CUSTOMER             = "cust"
	UUID_PREFIX_SUBSCRIPTION         = "sub"
	UUID_PREFIX_SUBSCRIPTION_PHASE   = "phase"
	UUID_PREFIX_SUBSCRIPTION_ITEM    = "subitem"
	UUID_PREFIX_PLAN_VERSION         = "planver"
	UUID_PREFIX_FEATURE_PLAN_VERSION = "fpv"
	UUID_PREFIX_GRANT                = "grant"
	UUID_PREFIX_ENTITLEMENT          = "ent"
	UUID_PREFIX_BILLING_PERIOD       = "bp"
	UUID_PREFIX_INVOICE              = "inv"
	UUID_PREFIX_INVOICE_ITEM         = "invitem"
	UUID_PREFIX_CREDIT_GRANT         = "cg"
	UUID_PREFIX_CREDIT_APPLICATION   = "cga"
	UUID_PREFIX_PAYMENT_ATTEMPT      = "pmtattempt"
	UUID_PREFIX_METER                = "meter"
	UUID_PREFIX_FEATURE              = "feat"
	UUID_PREFIX_PLAN                 = "plan"
	UUID_PREFIX_PRICE                = "price"
	UUID_PREFIX_LOCK_TOKEN           = "lock"
)
