package memory

import (
	"testing"

	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
	"github.com/mahaj/dupahar-messaging/pkg/store/storetest"
)

func TestStoreContract(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	storetest.Run(t, New(node))
}
