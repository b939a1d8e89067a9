package conversation_test

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/RNA4219/SAIVerse/pkg/conversation"
	"github.com/RNA4219/SAIVerse/pkg/storage/sqlite"
)

func seedThread(db *sql.DB, thread string, startUnix int64, n int) {
	_, err := db.Exec("INSERT INTO threads (id) VALUES (?)", thread)
	Expect(err).NotTo(HaveOccurred())
	for i := range n {
		_, err := db.Exec(
			"INSERT INTO messages (id, thread_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
			fmt.Sprintf("%s-%03d", thread, i), thread, "user", fmt.Sprintf("%s message %d", thread, i), startUnix+int64(i),
		)
		Expect(err).NotTo(HaveOccurred())
	}
}

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		db    *sql.DB
		store *conversation.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = sqlite.Open(":memory:")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)

		store, err = conversation.NewStore(db)
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns nothing from an empty database", func() {
		msgs, err := store.Fetch(ctx, conversation.FetchOptions{Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})

	It("orders threads by their first message and empty threads last", func() {
		_, err := db.Exec("INSERT INTO threads (id) VALUES ('empty')")
		Expect(err).NotTo(HaveOccurred())
		seedThread(db, "late", 2000, 2)
		seedThread(db, "early", 1000, 2)

		msgs, err := store.Fetch(ctx, conversation.FetchOptions{Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(4))
		Expect(msgs[0].ThreadID).To(Equal("early"))
		Expect(msgs[2].ThreadID).To(Equal("late"))
		Expect(msgs[0].CreatedAt).To(Equal(time.Unix(1000, 0)))
	})

	It("applies offset and limit across threads and pages", func() {
		seedThread(db, "a", 1000, 150)
		seedThread(db, "b", 5000, 10)

		msgs, err := store.Fetch(ctx, conversation.FetchOptions{Offset: 145, Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(10))
		Expect(msgs[0].ID).To(Equal("a-145"))
		Expect(msgs[4].ID).To(Equal("a-149"))
		Expect(msgs[5].ID).To(Equal("b-000"))
	})

	It("restricts to a single thread", func() {
		seedThread(db, "a", 1000, 3)
		seedThread(db, "b", 500, 3)

		msgs, err := store.Fetch(ctx, conversation.FetchOptions{Limit: 10, ThreadID: "a"})
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(3))
		for _, m := range msgs {
			Expect(m.ThreadID).To(Equal("a"))
		}
	})

	It("returns nothing when the offset passes the end", func() {
		seedThread(db, "a", 1000, 3)
		msgs, err := store.Fetch(ctx, conversation.FetchOptions{Offset: 5, Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})
})

var _ = Describe("TimeRange", func() {
	It("finds the earliest and latest timestamps", func() {
		start, end := conversation.TimeRange([]conversation.Message{
			{CreatedAt: time.Unix(30, 0)},
			{CreatedAt: time.Unix(10, 0)},
			{CreatedAt: time.Unix(20, 0)},
		})
		Expect(start).To(Equal(time.Unix(10, 0)))
		Expect(end).To(Equal(time.Unix(30, 0)))
	})
})
