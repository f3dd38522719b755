// Package mongo stores balances, entries, goals and budgets in MongoDB.
//
// Units of work use multi-document transactions, so the server must run as a
// replica set (a single-node replica set is enough).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

const (
	BalancesCollection = "balances"
	EntriesCollection  = "entries"
	GoalsCollection    = "goals"
	BudgetsCollection  = "budgets"
)

type balanceDoc struct {
	UserID      string    `bson:"_id"`
	AmountCents int64     `bson:"amountCents"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

type entryDoc struct {
	ID          string    `bson:"_id"`
	Owner       string    `bson:"owner"`
	Kind        string    `bson:"kind"`
	Category    string    `bson:"category"`
	AmountCents int64     `bson:"amountCents"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"createdAt"`
	Voided      bool      `bson:"voided"`
}

type goalDoc struct {
	ID           string    `bson:"_id"`
	Owner        string    `bson:"owner"`
	Name         string    `bson:"name"`
	TargetCents  int64     `bson:"targetCents"`
	AccruedCents int64     `bson:"accruedCents"`
	StartDate    time.Time `bson:"startDate"`
	EndDate      time.Time `bson:"endDate"`
	State        string    `bson:"state"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type budgetDoc struct {
	ID         string `bson:"_id"`
	Owner      string `bson:"owner"`
	Category   string `bson:"category"`
	LimitCents int64  `bson:"limitCents"`
}

// Store implements storage.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	c      collections
}

var _ storage.Store = (*Store)(nil)

// Connect dials uri and prepares the indexes the queries rely on.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := NewStore(client, client.Database(database))
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func NewStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client: client,
		c: collections{
			balances: db.Collection(BalancesCollection),
			entries:  db.Collection(EntriesCollection),
			goals:    db.Collection(GoalsCollection),
			budgets:  db.Collection(BudgetsCollection),
		},
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.c.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "category", Value: 1}, {Key: "kind", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create entry indexes: %w", err)
	}
	_, err = s.c.goals.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "state", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create goal indexes: %w", err)
	}
	return nil
}

// Atomically runs fn inside a session transaction.
func (s *Store) Atomically(ctx context.Context, fn func(tx storage.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(&txView{c: s.c, sc: sc})
	})
	return err
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Balance(ctx context.Context, userID string) (core.Money, error) {
	return s.c.balance(ctx, userID)
}
func (s *Store) SetBalance(ctx context.Context, userID string, m core.Money) error {
	return s.c.setBalance(ctx, userID, m)
}
func (s *Store) GetEntry(ctx context.Context, id, owner string) (core.Entry, error) {
	return s.c.getEntry(ctx, id, owner)
}
func (s *Store) SaveEntry(ctx context.Context, e core.Entry) error { return s.c.saveEntry(ctx, e) }
func (s *Store) ListEntries(ctx context.Context, owner string) ([]core.Entry, error) {
	return s.c.listEntries(ctx, owner)
}
func (s *Store) SumExpenses(ctx context.Context, owner, category string, from, to time.Time) (core.Money, error) {
	return s.c.sumExpenses(ctx, owner, category, from, to)
}
func (s *Store) GetGoal(ctx context.Context, id, owner string) (core.Goal, error) {
	return s.c.getGoal(ctx, id, owner)
}
func (s *Store) SaveGoal(ctx context.Context, g core.Goal) error { return s.c.saveGoal(ctx, g) }
func (s *Store) DeleteGoal(ctx context.Context, id, owner string) error {
	return s.c.deleteGoal(ctx, id, owner)
}
func (s *Store) ListGoals(ctx context.Context, owner string) ([]core.Goal, error) {
	return s.c.findGoals(ctx, bson.M{"owner": owner}, bson.D{{Key: "startDate", Value: -1}, {Key: "createdAt", Value: -1}})
}
func (s *Store) ActiveGoals(ctx context.Context, owner string) ([]core.Goal, error) {
	return s.c.findGoals(ctx, bson.M{"owner": owner, "state": string(core.GoalActive)}, bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
}
func (s *Store) SetBudget(ctx context.Context, b core.Budget) error { return s.c.setBudget(ctx, b) }
func (s *Store) GetBudget(ctx context.Context, owner, category string) (core.Budget, error) {
	return s.c.getBudget(ctx, owner, category)
}
func (s *Store) ListBudgets(ctx context.Context, owner string) ([]core.Budget, error) {
	return s.c.listBudgets(ctx, owner)
}

// txView routes every call through the session context of the running
// transaction. The caller's ctx is already its parent.
type txView struct {
	c  collections
	sc mongo.SessionContext
}

func (v *txView) Balance(_ context.Context, userID string) (core.Money, error) {
	return v.c.balance(v.sc, userID)
}
func (v *txView) SetBalance(_ context.Context, userID string, m core.Money) error {
	return v.c.setBalance(v.sc, userID, m)
}
func (v *txView) GetEntry(_ context.Context, id, owner string) (core.Entry, error) {
	return v.c.getEntry(v.sc, id, owner)
}
func (v *txView) SaveEntry(_ context.Context, e core.Entry) error { return v.c.saveEntry(v.sc, e) }
func (v *txView) ListEntries(_ context.Context, owner string) ([]core.Entry, error) {
	return v.c.listEntries(v.sc, owner)
}
func (v *txView) SumExpenses(_ context.Context, owner, category string, from, to time.Time) (core.Money, error) {
	return v.c.sumExpenses(v.sc, owner, category, from, to)
}
func (v *txView) GetGoal(_ context.Context, id, owner string) (core.Goal, error) {
	return v.c.getGoal(v.sc, id, owner)
}
func (v *txView) SaveGoal(_ context.Context, g core.Goal) error { return v.c.saveGoal(v.sc, g) }
func (v *txView) DeleteGoal(_ context.Context, id, owner string) error {
	return v.c.deleteGoal(v.sc, id, owner)
}
func (v *txView) ListGoals(_ context.Context, owner string) ([]core.Goal, error) {
	return v.c.findGoals(v.sc, bson.M{"owner": owner}, bson.D{{Key: "startDate", Value: -1}, {Key: "createdAt", Value: -1}})
}
func (v *txView) ActiveGoals(_ context.Context, owner string) ([]core.Goal, error) {
	return v.c.findGoals(v.sc, bson.M{"owner": owner, "state": string(core.GoalActive)}, bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
}
func (v *txView) SetBudget(_ context.Context, b core.Budget) error { return v.c.setBudget(v.sc, b) }
func (v *txView) GetBudget(_ context.Context, owner, category string) (core.Budget, error) {
	return v.c.getBudget(v.sc, owner, category)
}
func (v *txView) ListBudgets(_ context.Context, owner string) ([]core.Budget, error) {
	return v.c.listBudgets(v.sc, owner)
}

type collections struct {
	balances, entries, goals, budgets *mongo.Collection
}

func (c collections) balance(ctx context.Context, userID string) (core.Money, error) {
	var doc balanceDoc
	err := c.balances.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("get balance: %w", err)
	}
	return core.Money{Cents: doc.AmountCents}, nil
}

func (c collections) setBalance(ctx context.Context, userID string, m core.Money) error {
	doc := balanceDoc{UserID: userID, AmountCents: m.Cents, UpdatedAt: time.Now().UTC()}
	_, err := c.balances.ReplaceOne(ctx, bson.M{"_id": userID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

func (c collections) getEntry(ctx context.Context, id, owner string) (core.Entry, error) {
	var doc entryDoc
	err := c.entries.FindOne(ctx, bson.M{"_id": id, "owner": owner}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry %s: %w", id, err)
	}
	return doc.toCore(), nil
}

func (c collections) saveEntry(ctx context.Context, e core.Entry) error {
	doc := entryDoc{
		ID: e.ID, Owner: e.Owner, Kind: string(e.Kind), Category: e.Category,
		AmountCents: e.Amount.Cents, Description: e.Description, CreatedAt: e.CreatedAt.UTC(), Voided: e.Voided,
	}
	_, err := c.entries.ReplaceOne(ctx, bson.M{"_id": e.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return nil
}

func (c collections) listEntries(ctx context.Context, owner string) ([]core.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := c.entries.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	out := make([]core.Entry, len(docs))
	for i, d := range docs {
		out[i] = d.toCore()
	}
	return out, nil
}

func (c collections) sumExpenses(ctx context.Context, owner, category string, from, to time.Time) (core.Money, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"owner":     owner,
			"category":  category,
			"kind":      string(core.Expense),
			"voided":    false,
			"createdAt": bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
		}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amountCents"}}}},
	}
	cur, err := c.entries.Aggregate(ctx, pipeline)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	var res []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &res); err != nil {
		return core.Money{}, fmt.Errorf("decode expense sum: %w", err)
	}
	if len(res) == 0 {
		return core.Money{}, nil
	}
	return core.Money{Cents: res[0].Total}, nil
}

func (c collections) getGoal(ctx context.Context, id, owner string) (core.Goal, error) {
	var doc goalDoc
	err := c.goals.FindOne(ctx, bson.M{"_id": id, "owner": owner}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Goal{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal %s: %w", id, err)
	}
	return doc.toCore(), nil
}

func (c collections) saveGoal(ctx context.Context, g core.Goal) error {
	doc := goalDoc{
		ID: g.ID, Owner: g.Owner, Name: g.Name, TargetCents: g.Target.Cents, AccruedCents: g.Accrued.Cents,
		StartDate: g.StartDate.Time, EndDate: g.EndDate.Time, State: string(g.State), CreatedAt: g.CreatedAt.UTC(),
	}
	_, err := c.goals.ReplaceOne(ctx, bson.M{"_id": g.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save goal %s: %w", g.ID, err)
	}
	return nil
}

func (c collections) deleteGoal(ctx context.Context, id, owner string) error {
	res, err := c.goals.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	if err != nil {
		return fmt.Errorf("delete goal %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c collections) findGoals(ctx context.Context, filter bson.M, sort bson.D) ([]core.Goal, error) {
	cur, err := c.goals.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	var docs []goalDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode goals: %w", err)
	}
	out := make([]core.Goal, len(docs))
	for i, d := range docs {
		out[i] = d.toCore()
	}
	return out, nil
}

func (c collections) setBudget(ctx context.Context, b core.Budget) error {
	doc := budgetDoc{ID: budgetID(b.Owner, b.Category), Owner: b.Owner, Category: b.Category, LimitCents: b.Limit.Cents}
	_, err := c.budgets.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	return nil
}

func (c collections) getBudget(ctx context.Context, owner, category string) (core.Budget, error) {
	var doc budgetDoc
	err := c.budgets.FindOne(ctx, bson.M{"_id": budgetID(owner, category)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Budget{}, storage.ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return doc.toCore(), nil
}

func (c collections) listBudgets(ctx context.Context, owner string) ([]core.Budget, error) {
	cur, err := c.budgets.Find(ctx, bson.M{"owner": owner}, options.Find().SetSort(bson.D{{Key: "category", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	var docs []budgetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode budgets: %w", err)
	}
	out := make([]core.Budget, len(docs))
	for i, d := range docs {
		out[i] = d.toCore()
	}
	return out, nil
}

func budgetID(owner, category string) string {
	return owner + "/" + category
}

func (d entryDoc) toCore() core.Entry {
	return core.Entry{
		ID: d.ID, Owner: d.Owner, Kind: core.Kind(d.Kind), Category: d.Category,
		Amount: core.Money{Cents: d.AmountCents}, Description: d.Description,
		CreatedAt: d.CreatedAt.UTC(), Voided: d.Voided,
	}
}

func (d goalDoc) toCore() core.Goal {
	return core.Goal{
		ID: d.ID, Owner: d.Owner, Name: d.Name,
		Target: core.Money{Cents: d.TargetCents}, Accrued: core.Money{Cents: d.AccruedCents},
		StartDate: core.Date{Time: d.StartDate.UTC()}, EndDate: core.Date{Time: d.EndDate.UTC()},
		State: core.GoalState(d.State), CreatedAt: d.CreatedAt.UTC(),
	}
}

func (d budgetDoc) toCore() core.Budget {
	return core.Budget{Owner: d.Owner, Category: d.Category, Limit: core.Money{Cents: d.LimitCents}}
}
