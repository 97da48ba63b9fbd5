// Package conversation folds the message log into per-counterpart
// conversation summaries for one user.
package conversation

import (
	"context"
	"log"
	"sort"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/store"
	"github.com/leonletto/carlot/internal/types"
)

// Pagination bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// MessageSource supplies the messages visible to a user, newest first.
type MessageSource interface {
	ListForUser(ctx context.Context, userID string, f store.Filter) ([]types.Message, error)
}

// ArchiveOverlay reports which conversations a user has archived.
type ArchiveOverlay interface {
	Archived(ctx context.Context, userID string) (map[types.ConversationKey]bool, error)
}

// Directory supplies display records for the join.
type Directory interface {
	Profiles(ctx context.Context, userIDs []string) (map[string]types.Profile, error)
	Listings(ctx context.Context, ids []string) (map[string]types.Listing, error)
}

// Options selects and pages the conversation list.
type Options struct {
	ListingID       string
	IncludeArchived bool
	Search          string
	Limit           int
	Offset          int
}

// Page is one page of conversation summaries. Total counts every
// conversation that passed the filters, before paging.
type Page struct {
	Conversations []types.Conversation `json:"conversations"`
	Total         int                  `json:"total"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

// Aggregator builds conversation lists.
type Aggregator struct {
	messages  MessageSource
	archive   ArchiveOverlay
	directory Directory
}

// New creates an aggregator. archive and directory may be nil: a nil
// overlay reports every conversation unarchived and a nil directory skips
// the display join.
func New(messages MessageSource, archive ArchiveOverlay, directory Directory) *Aggregator {
	return &Aggregator{messages: messages, archive: archive, directory: directory}
}

// List returns the user's conversations, most recently active first.
func (a *Aggregator) List(ctx context.Context, userID string, opts Options) (*Page, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	limit, offset := normalizePage(opts.Limit, opts.Offset)

	msgs, err := a.messages.ListForUser(ctx, userID, store.Filter{
		ListingID: opts.ListingID,
		Search:    opts.Search,
	})
	if err != nil {
		return nil, apperr.OrStorage(err, "list conversations")
	}

	convs := Aggregate(userID, msgs)

	archived, err := a.archivedSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	kept := convs[:0]
	for _, c := range convs {
		c.IsArchived = archived[c.Key]
		if c.IsArchived && !opts.IncludeArchived {
			continue
		}
		kept = append(kept, c)
	}
	convs = kept

	Sort(convs)

	page := &Page{Total: len(convs), Limit: limit, Offset: offset}
	if offset < len(convs) {
		end := min(offset+limit, len(convs))
		page.Conversations = convs[offset:end]
	}
	if page.Conversations == nil {
		page.Conversations = []types.Conversation{}
	}

	a.joinDisplay(ctx, page.Conversations)
	return page, nil
}

// archivedSet loads the overlay. An unavailable overlay means nothing is
// archived; any other failure fails the list.
func (a *Aggregator) archivedSet(ctx context.Context, userID string) (map[types.ConversationKey]bool, error) {
	if a.archive == nil {
		return nil, nil
	}
	set, err := a.archive.Archived(ctx, userID)
	if apperr.KindOf(err) == apperr.KindFeatureUnavailable {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.OrStorage(err, "load archive settings")
	}
	return set, nil
}

// joinDisplay attaches counterpart profiles and listing titles. Failures
// here only degrade display.
func (a *Aggregator) joinDisplay(ctx context.Context, convs []types.Conversation) {
	if a.directory == nil || len(convs) == 0 {
		return
	}
	userIDs := make([]string, 0, len(convs))
	listingIDs := make([]string, 0, len(convs))
	seenUser := map[string]bool{}
	seenListing := map[string]bool{}
	for _, c := range convs {
		if !seenUser[c.OtherParticipant] {
			seenUser[c.OtherParticipant] = true
			userIDs = append(userIDs, c.OtherParticipant)
		}
		if !seenListing[c.ListingID] {
			seenListing[c.ListingID] = true
			listingIDs = append(listingIDs, c.ListingID)
		}
	}

	profiles, err := a.directory.Profiles(ctx, userIDs)
	if err != nil {
		log.Printf("conversation: profile join failed: %v", err)
	}
	listings, err := a.directory.Listings(ctx, listingIDs)
	if err != nil {
		log.Printf("conversation: listing join failed: %v", err)
	}

	for i := range convs {
		if p, ok := profiles[convs[i].OtherParticipant]; ok {
			convs[i].OtherProfile = &p
		}
		if l, ok := listings[convs[i].ListingID]; ok {
			convs[i].Listing = &l
		}
	}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Aggregate folds msgs, as seen by userID, into one conversation per key.
// msgs are expected newest first; the result keeps first-seen order.
func Aggregate(userID string, msgs []types.Message) []types.Conversation {
	index := make(map[types.ConversationKey]int)
	var out []types.Conversation

	for _, m := range msgs {
		key := m.Key(userID)
		i, ok := index[key]
		if !ok {
			c := types.Conversation{
				Key:                key,
				ListingID:          m.ListingID,
				OtherParticipant:   key.OtherUserID,
				LastMessage:        m,
				IsSelfConversation: m.IsSelf(),
			}
			if c.IsSelfConversation {
				c.Participants = []string{userID}
			} else {
				c.Participants = []string{userID, key.OtherUserID}
			}
			index[key] = len(out)
			out = append(out, c)
			i = len(out) - 1
		} else if m.CreatedAt.After(out[i].LastMessage.CreatedAt) {
			out[i].LastMessage = m
		}

		if countsAsUnread(userID, &m) {
			out[i].UnreadCount++
		}
	}
	return out
}

// countsAsUnread applies the reader rule: the recipient for ordinary
// messages, the author for self-messages.
func countsAsUnread(userID string, m *types.Message) bool {
	if m.IsRead {
		return false
	}
	if m.IsSelf() {
		return m.SenderID == userID
	}
	return m.RecipientID == userID
}

// Sort orders conversations by last activity, newest first, breaking ties
// by thread_order and then by key.
func Sort(convs []types.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := &convs[i].LastMessage, &convs[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.ThreadOrder != b.ThreadOrder {
			return a.ThreadOrder > b.ThreadOrder
		}
		return convs[i].Key.Less(convs[j].Key)
	})
}
