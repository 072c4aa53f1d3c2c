package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/busyloop/hu/pkg/stores"
)

// ExampleOpen opens an in-memory journal and records one action.
func ExampleOpen() {
	ctx := context.Background()
	journal, err := stores.Open(ctx, stores.Config{Path: stores.MemoryPath})
	if err != nil {
		log.Fatal(err)
	}
	defer journal.Close()

	session := &stores.Session{Repo: "/src/shop", ProductionApp: "shop-prod"}
	if err := journal.CreateSession(ctx, session); err != nil {
		log.Fatal(err)
	}

	err = journal.RecordAction(ctx, &stores.Action{
		SessionID:  session.ID,
		Action:     "promote",
		Phase:      "final_staging_verification",
		ReleaseTag: "v1.0.0",
		Outcome:    "succeeded",
		StartedAt:  time.Now(),
	})
	if err != nil {
		log.Fatal(err)
	}

	entries, err := journal.ListActions(ctx, stores.ActionFilter{}, 10, 0)
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range entries {
		fmt.Println(e.Action.Action, e.ReleaseTag, e.ProductionApp, e.Outcome)
	}
	// Output: promote v1.0.0 shop-prod succeeded
}
