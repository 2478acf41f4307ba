package history

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
)

// supergroupPrefix turns a Bot API chat id into an MTProto channel id: -100<channel id>.
const (
	supergroupPrefix = 1_000_000_000_000
	maxFloodRetries  = 3
)

var (
	// ErrNotSupergroup indicates a chat id that is not a supergroup id.
	ErrNotSupergroup = errors.New("chat is not a supergroup")
	// ErrChatNotJoined indicates the user account is not a member of the chat.
	ErrChatNotJoined = errors.New("chat not found among joined chats")
)

// Config holds the MTProto login settings.
type Config struct {
	APIID       int
	APIHash     string
	Phone       string
	Password    string
	SessionPath string
}

// Run logs in as a user, asking for missing credentials on the terminal, and
// calls fn with a fetcher bound to the session.
func Run(ctx context.Context, cfg Config, logger *zerolog.Logger, fn func(ctx context.Context, fetcher Fetcher) error) error {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{Path: cfg.SessionPath},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		authenticator := &terminalAuth{
			phone:    cfg.Phone,
			password: cfg.Password,
			in:       bufio.NewReader(os.Stdin),
			out:      os.Stdout,
			logger:   logger,
		}

		if err := client.Auth().IfNecessary(ctx, auth.NewFlow(authenticator, auth.SendCodeOptions{})); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}

		logger.Info().Msg("authenticated as user")

		return fn(ctx, newFetcher(tg.NewClient(client), logger))
	})
}

type fetcher struct {
	api    *tg.Client
	logger *zerolog.Logger

	mu    sync.Mutex
	peers map[int64]*tg.InputPeerChannel
}

func newFetcher(api *tg.Client, logger *zerolog.Logger) *fetcher {
	return &fetcher{api: api, logger: logger, peers: make(map[int64]*tg.InputPeerChannel)}
}

// Replies implements Fetcher with messages.getReplies.
func (f *fetcher) Replies(ctx context.Context, chatID, threadID, offsetID int64, limit int) (Page, error) {
	peer, err := f.resolve(ctx, chatID)
	if err != nil {
		return Page{}, err
	}

	req := &tg.MessagesGetRepliesRequest{
		Peer:     peer,
		MsgID:    int(threadID),
		OffsetID: int(offsetID),
		Limit:    limit,
	}

	var res tg.MessagesMessagesClass

	for attempt := 0; ; attempt++ {
		res, err = f.api.MessagesGetReplies(ctx, req)
		if err == nil {
			break
		}

		floodErr, ok := tgerr.As(err)
		if !ok || floodErr.Type != "FLOOD_WAIT" || attempt >= maxFloodRetries {
			return Page{}, fmt.Errorf("get replies of thread %d: %w", threadID, err)
		}

		f.logger.Warn().Int("seconds", floodErr.Argument).Int64(logKeyThreadID, threadID).Msg("flood wait")

		select {
		case <-ctx.Done():
			return Page{}, fmt.Errorf("flood wait interrupted: %w", ctx.Err())
		case <-time.After(time.Duration(floodErr.Argument) * time.Second):
		}
	}

	var (
		messages []tg.MessageClass
		users    []tg.UserClass
	)

	switch h := res.(type) {
	case *tg.MessagesMessages:
		messages, users = h.Messages, h.Users
	case *tg.MessagesMessagesSlice:
		messages, users = h.Messages, h.Users
	case *tg.MessagesChannelMessages:
		messages, users = h.Messages, h.Users
	case *tg.MessagesMessagesNotModified:
		return Page{}, nil
	}

	return toPage(messages, users, limit), nil
}

// resolve finds the access hash of a supergroup among the chats the user has joined.
func (f *fetcher) resolve(ctx context.Context, chatID int64) (*tg.InputPeerChannel, error) {
	channelID, err := channelIDFromChatID(chatID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if peer, ok := f.peers[channelID]; ok {
		return peer, nil
	}

	res, err := f.api.MessagesGetAllChats(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list joined chats: %w", err)
	}

	var chats []tg.ChatClass

	switch c := res.(type) {
	case *tg.MessagesChats:
		chats = c.Chats
	case *tg.MessagesChatsSlice:
		chats = c.Chats
	}

	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok {
			f.peers[ch.ID] = &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
		}
	}

	peer, ok := f.peers[channelID]
	if !ok {
		return nil, fmt.Errorf("chat %d: %w", chatID, ErrChatNotJoined)
	}

	return peer, nil
}

func channelIDFromChatID(chatID int64) (int64, error) {
	id := -chatID - supergroupPrefix
	if chatID >= 0 || id <= 0 {
		return 0, fmt.Errorf("chat %d: %w", chatID, ErrNotSupergroup)
	}

	return id, nil
}

// toPage converts raw messages, newest first. Service messages are dropped but
// still advance the offset.
func toPage(messages []tg.MessageClass, users []tg.UserClass, limit int) Page {
	byID := make(map[int64]*tg.User, len(users))

	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			byID[user.ID] = user
		}
	}

	var (
		page   Page
		lowest int64
	)

	for _, m := range messages {
		if id := int64(m.GetID()); lowest == 0 || id < lowest {
			lowest = id
		}

		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}

		page.Replies = append(page.Replies, toReply(msg, byID))
	}

	if len(messages) >= limit {
		page.NextOffset = lowest
	}

	return page
}

func toReply(msg *tg.Message, users map[int64]*tg.User) Reply {
	r := Reply{
		MessageID: int64(msg.ID),
		Text:      msg.Message,
		Date:      time.Unix(int64(msg.Date), 0).UTC(),
	}

	if edit, ok := msg.GetEditDate(); ok {
		r.EditDate = time.Unix(int64(edit), 0).UTC()
	}

	if from, ok := msg.GetFromID(); ok {
		if peer, ok := from.(*tg.PeerUser); ok {
			r.SenderID = peer.UserID

			if u := users[peer.UserID]; u != nil {
				r.SenderIsBot = u.Bot
				r.SenderName = userName(u)
			}
		}
	}

	if hdr, ok := msg.GetReplyTo(); ok {
		if h, ok := hdr.(*tg.MessageReplyHeader); ok {
			r.ReplyToMessageID = int64(h.ReplyToMsgID)
		}
	}

	if reactions, ok := msg.GetReactions(); ok {
		for _, rc := range reactions.Results {
			r.ReactionCount += rc.Count
		}
	}

	return r
}

func userName(u *tg.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}

	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
