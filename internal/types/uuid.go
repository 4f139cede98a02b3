package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex cusprod_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

var (
	sidGenerator *shortid.Shortid
	once         sync.Once
)

func initializeSID() {
	var err error
	sidGenerator, err = shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic("failed to initialize shortid generator: " + err.Error())
	}
}

// GenerateShortIDWithPrefix returns a short ID with a prefix.
// Total length is capped at 12 characters, e.g. `tr_xYZ12A8Q`.
func GenerateShortIDWithPrefix(prefix string) string {
	once.Do(initializeSID)

	id, err := sidGenerator.Generate()
	if err != nil {
		return ""
	}
	id = strings.ReplaceAll(id, "-", "")

	availableLen := 12 - len(prefix)
	if availableLen <= 0 {
		return ""
	}

	if len(id) > availableLen {
		id = id[:availableLen]
	}

	return strings.ToUpper(fmt.Sprintf("%s%s", prefix, id))
}

const (
	// Prefixes for all domains and entities

	UUID_PREFIX_CUSTOMER             = "cus"
	UUID_PREFIX_ENTITY               = "ent"
	UUID_PREFIX_FEATURE              = "feat"
	UUID_PREFIX_PRODUCT              = "prod"
	UUID_PREFIX_ENTITLEMENT          = "item"
	UUID_PREFIX_PRICE                = "price"
	UUID_PREFIX_FREE_TRIAL           = "trial"
	UUID_PREFIX_CUSTOMER_PRODUCT     = "cusprod"
	UUID_PREFIX_CUSTOMER_ENTITLEMENT = "cusitem"
	UUID_PREFIX_CUSTOMER_PRICE       = "cusprice"
	UUID_PREFIX_REPLACEABLE          = "rep"
	UUID_PREFIX_BILLING_PLAN         = "bplan"
	UUID_PREFIX_CONSISTENCY_REPORT   = "check"
)
