package records

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"chip-ledger/internal/ledger"
	"chip-ledger/internal/live"
	"chip-ledger/internal/registry"
	"chip-ledger/internal/store"
	"chip-ledger/internal/tally"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxManualHours   = 48

	reasonOtherPlayers = "Other players in this room"
	reasonNotOwner     = "Record belongs to another user"
)

// RoomIDs hands out unused room ids for manual records.
type RoomIDs interface {
	NewRoomID(ctx context.Context) (string, error)
}

type Service struct {
	ledger *ledger.Ledger
	store  store.Store
	ids    RoomIDs
}

func NewService(st store.Store, ids RoomIDs) *Service {
	return &Service{ledger: ledger.New(st), store: st, ids: ids}
}

// ClampPage applies the default page size and the upper bound.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func displayCurrency(c string) (string, error) {
	c = tally.NormalizeCurrency(c)
	switch c {
	case "":
		return tally.CAD, nil
	case tally.CAD, tally.CNY:
		return c, nil
	default:
		return "", ErrInvalidRequest
	}
}

func (s *Service) RoomResults(ctx context.Context, roomID string) (*RoomResultsResponse, error) {
	items, err := s.ledger.RoomEntries(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &RoomResultsResponse{RoomID: roomID, Items: items}, nil
}

func (s *Service) UserRecords(ctx context.Context, userID string, limit, offset int) (*UserRecordsResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidRequest
	}
	limit, offset = ClampPage(limit, offset)
	items, err := s.ledger.UserEntries(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &UserRecordsResponse{Items: items, Limit: limit, Offset: offset}, nil
}

// UserStats summarizes every settled game of a user in the given currency.
func (s *Service) UserStats(ctx context.Context, userID, currency string) (*StatsResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidRequest
	}
	currency, err := displayCurrency(currency)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.UserEntries(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}
	games := make([]tally.Game, 0, len(entries))
	for _, e := range entries {
		if g, ok := e.Game(currency); ok {
			games = append(games, g)
		}
	}
	return &StatsResponse{UserID: userID, Currency: currency, Summary: tally.Summarize(games)}, nil
}

// MonthlyStats groups settled games by the month the room was created.
// year 0 means all years; month is only honoured together with a year.
func (s *Service) MonthlyStats(ctx context.Context, userID, currency string, year, month int) (*MonthlyResponse, error) {
	if strings.TrimSpace(userID) == "" || year < 0 || month < 0 || month > 12 || (month > 0 && year == 0) {
		return nil, ErrInvalidRequest
	}
	currency, err := displayCurrency(currency)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.UserEntries(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		games int
		wins  int
		total decimal.Decimal
	}
	buckets := make(map[string]*bucket)
	var order []string
	for _, e := range entries {
		created := e.CreatedAt.UTC()
		if year > 0 && created.Year() != year {
			continue
		}
		if month > 0 && int(created.Month()) != month {
			continue
		}
		key := created.Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
			order = append(order, key)
		}
		b.games++
		if e.Profit != nil {
			p := tally.Convert(*e.Profit, e.Currency, currency)
			b.total = b.total.Add(p)
			if p.IsPositive() {
				b.wins++
			}
		}
	}

	// Manual records can be back-dated, so newest-settled is not newest-month.
	slices.SortFunc(order, func(a, b string) int { return strings.Compare(b, a) })
	items := make([]MonthRow, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		items = append(items, MonthRow{
			Month:       key,
			GamesPlayed: b.games,
			TotalProfit: b.total.Round(2).InexactFloat64(),
			AvgProfit:   b.total.Div(decimal.NewFromInt(int64(b.games))).Round(2).InexactFloat64(),
			WinGames:    b.wins,
		})
	}
	return &MonthlyResponse{UserID: userID, Currency: currency, Items: items}, nil
}

// HeadToHead compares two users over the settled rooms they shared.
func (s *Service) HeadToHead(ctx context.Context, userID, opponentID, currency string) (*HeadToHeadResponse, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(opponentID) == "" || userID == opponentID {
		return nil, ErrInvalidRequest
	}
	currency, err := displayCurrency(currency)
	if err != nil {
		return nil, err
	}
	games, err := s.ledger.Matchups(ctx, userID, opponentID)
	if err != nil {
		return nil, err
	}
	var st HeadToHeadStats
	userTotal, oppTotal := decimal.Zero, decimal.Zero
	for _, g := range games {
		up, op := decimal.Zero, decimal.Zero
		if g.User.Profit != nil {
			up = tally.Convert(*g.User.Profit, g.Currency, currency)
		}
		if g.Opponent.Profit != nil {
			op = tally.Convert(*g.Opponent.Profit, g.Currency, currency)
		}
		st.TotalGames++
		switch up.Cmp(op) {
		case 1:
			st.UserWins++
		case -1:
			st.OpponentWins++
		default:
			st.Ties++
		}
		userTotal = userTotal.Add(up)
		oppTotal = oppTotal.Add(op)
	}
	st.UserTotalProfit = userTotal.Round(2).InexactFloat64()
	st.OpponentTotalProfit = oppTotal.Round(2).InexactFloat64()
	if st.TotalGames > 0 {
		st.UserWinRate = decimal.NewFromInt(int64(st.UserWins * 100)).Div(decimal.NewFromInt(int64(st.TotalGames))).Round(2).InexactFloat64()
	}
	return &HeadToHeadResponse{UserID: userID, OpponentID: opponentID, Currency: currency, Stats: st, Games: games}, nil
}

// RenameUser rewrites the nickname on all of a user's stored results.
func (s *Service) RenameUser(ctx context.Context, userID, nickname string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidRequest
	}
	nickname, err := live.CleanNickname(nickname)
	if err != nil {
		return 0, err
	}
	n, err := s.store.UpdateUserNickname(ctx, userID, nickname)
	if err != nil {
		return 0, fmt.Errorf("rename user %s: %w", userID, err)
	}
	return n, nil
}

func defaultNickname(userID string) string {
	r := []rune(userID)
	if len(r) > 4 {
		r = r[len(r)-4:]
	}
	return "User_" + string(r)
}

// AddManualRecord stores a game played offline as its own settled room.
func (s *Service) AddManualRecord(ctx context.Context, userID string, in ManualRecord) (*ManualRecordResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidRequest
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(in.Date), time.UTC)
	if err != nil {
		return nil, ErrInvalidRequest
	}
	if in.DurationHours <= 0 || in.DurationHours > maxManualHours || in.Hands <= 0 || in.FinalChips < 0 {
		return nil, ErrInvalidRequest
	}
	cost, err := decimal.NewFromString(strings.TrimSpace(in.CostPerHand))
	if err != nil {
		return nil, ErrInvalidRequest
	}
	cfg, err := registry.RoomConfig{
		ChipsPerHand: in.ChipsPerHand,
		BigBlind:     in.BigBlind,
		CostPerHand:  cost,
		Currency:     in.Currency,
	}.Normalize()
	if err != nil {
		return nil, ErrInvalidRequest
	}
	nickname := defaultNickname(userID)
	if strings.TrimSpace(in.UserNickname) != "" {
		if nickname, err = live.CleanNickname(in.UserNickname); err != nil {
			return nil, err
		}
	}

	roomID, err := s.ids.NewRoomID(ctx)
	if err != nil {
		return nil, err
	}
	settled := day.Add(time.Duration(in.DurationHours * float64(time.Hour)))
	chips := in.FinalChips
	id, err := s.store.InsertSettledRecord(ctx, store.RoomRecord{
		RoomID:       roomID,
		ChipsPerHand: cfg.ChipsPerHand,
		BigBlind:     cfg.BigBlind,
		CostPerHand:  cfg.CostPerHand,
		Currency:     cfg.Currency,
		CreatedAt:    day,
		SettledAt:    &settled,
	}, store.ResultRecord{
		RoomID:       roomID,
		UserID:       userID,
		UserNickname: nickname,
		Hands:        in.Hands,
		FinalChips:   &chips,
		JoinedAt:     day,
	})
	if err != nil {
		return nil, fmt.Errorf("insert manual record: %w", err)
	}
	log.Info().Str("user_id", userID).Str("room_id", roomID).Int64("record_id", id).Msg("manual record added")
	return &ManualRecordResponse{RecordID: id, RoomID: roomID}, nil
}

// CanDelete reports whether userID may delete the record. Only records that
// are the sole result of their room can go.
func (s *Service) CanDelete(ctx context.Context, recordID int64, userID string) (*DeletableResponse, error) {
	out, _, err := s.checkDeletable(ctx, recordID, userID)
	return out, err
}

func (s *Service) checkDeletable(ctx context.Context, recordID int64, userID string) (*DeletableResponse, string, error) {
	row, err := s.store.GetResult(ctx, recordID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrRecordNotFound
	}
	if err != nil {
		return nil, "", err
	}
	out := &DeletableResponse{RecordID: recordID}
	if row.Result.UserID != userID {
		out.Reason = reasonNotOwner
		return out, "", nil
	}
	n, err := s.store.CountRoomResults(ctx, row.Result.RoomID)
	if err != nil {
		return nil, "", err
	}
	if n > 1 {
		out.Reason = reasonOtherPlayers
		return out, "", nil
	}
	out.CanDelete = true
	return out, row.Result.RoomID, nil
}

func (s *Service) DeleteRecord(ctx context.Context, recordID int64, userID string) error {
	check, roomID, err := s.checkDeletable(ctx, recordID, userID)
	if err != nil {
		return err
	}
	if !check.CanDelete {
		return fmt.Errorf("%w: %s", ErrRecordNotDeletable, check.Reason)
	}
	err = s.store.DeleteResultAndRoom(ctx, recordID, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("delete record %d: %w", recordID, err)
	}
	log.Info().Str("user_id", userID).Int64("record_id", recordID).Msg("record deleted")
	return nil
}
