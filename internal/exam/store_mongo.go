package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps users, tests and registrations as documents. Batch saves
// check every version before writing, but writes are not transactional:
// a conflict detected mid-batch leaves earlier documents updated.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	tests  *mongo.Collection
	regs   *mongo.Collection
	loc    *time.Location
}

type userDoc struct {
	ID           string `bson:"_id"`
	Name         string `bson:"name"`
	Surname      string `bson:"surname"`
	Handle       string `bson:"handle,omitempty"`
	RegisteredAt string `bson:"registered_at"`
}

type testDoc struct {
	ID        string `bson:"_id"`
	AnswerKey string `bson:"answer_key"`
	Deadline  string `bson:"deadline"`
	CheckTime string `bson:"check_time"`
	CreatedAt string `bson:"created_at"`
}

type registrationDoc struct {
	ID            string   `bson:"_id"`
	TestID        string   `bson:"test_id"`
	UserID        string   `bson:"user_id"`
	Name          string   `bson:"name"`
	Surname       string   `bson:"surname"`
	RegisteredAt  string   `bson:"registered_at"`
	Answers       string   `bson:"answers,omitempty"`
	SubmittedAt   string   `bson:"submitted_at,omitempty"`
	Score         string   `bson:"score,omitempty"`
	RawCorrect    *int     `bson:"raw_correct,omitempty"`
	WeightedScore *float64 `bson:"weighted_score,omitempty"`
	Tier          string   `bson:"certificate_tier,omitempty"`
	Version       int64    `bson:"version"`
}

// OpenMongo connects to uri and uses database name.
func OpenMongo(ctx context.Context, uri, name string, loc *time.Location) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := NewMongoStore(client, client.Database(name), loc)
	_, err = s.regs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "test_id", Value: 1}, {Key: "registered_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo index: %w", err)
	}
	return s, nil
}

func NewMongoStore(client *mongo.Client, db *mongo.Database, loc *time.Location) *MongoStore {
	if loc == nil {
		loc = time.Local
	}
	return &MongoStore{
		client: client,
		users:  db.Collection("users"),
		tests:  db.Collection("tests"),
		regs:   db.Collection("registrations"),
		loc:    loc,
	}
}

func registrationKey(testID, userID string) string { return testID + ":" + userID }

func (s *MongoStore) GetUser(ctx context.Context, id string) (User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return User{}, err
	}
	reg, err := s.parse(d.RegisteredAt)
	if err != nil {
		return User{}, err
	}
	return User{ID: d.ID, Name: d.Name, Surname: d.Surname, Handle: d.Handle, RegisteredAt: reg}, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := s.users.InsertOne(ctx, userDoc{
		ID: u.ID, Name: u.Name, Surname: u.Surname, Handle: u.Handle,
		RegisteredAt: s.format(u.RegisteredAt),
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("user %s exists: %w", u.ID, ErrConflict)
	}
	return err
}

func (s *MongoStore) PutTest(ctx context.Context, t Test) error {
	if err := t.Validate(); err != nil {
		return err
	}
	d := testDoc{
		ID: t.ID, AnswerKey: t.AnswerKey,
		Deadline: s.format(t.Deadline), CheckTime: s.format(t.CheckTime), CreatedAt: s.format(t.CreatedAt),
	}
	_, err := s.tests.ReplaceOne(ctx, bson.M{"_id": t.ID}, d, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetTest(ctx context.Context, id string) (Test, error) {
	var d testDoc
	if err := s.tests.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Test{}, fmt.Errorf("test %s: %w", id, ErrNotFound)
		}
		return Test{}, err
	}
	return s.testFromDoc(d)
}

func (s *MongoStore) ListTests(ctx context.Context) ([]Test, error) {
	cur, err := s.tests.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []Test
	for cur.Next(ctx) {
		var d testDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		t, err := s.testFromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, cur.Err()
}

func (s *MongoStore) GetRegistration(ctx context.Context, testID, userID string) (Registration, error) {
	var d registrationDoc
	if err := s.regs.FindOne(ctx, bson.M{"_id": registrationKey(testID, userID)}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Registration{}, fmt.Errorf("registration %s/%s: %w", testID, userID, ErrNotFound)
		}
		return Registration{}, err
	}
	return s.registrationFromDoc(d)
}

func (s *MongoStore) ListRegistrations(ctx context.Context, testID string) ([]Registration, error) {
	opts := options.Find().SetSort(bson.D{{Key: "registered_at", Value: 1}, {Key: "user_id", Value: 1}})
	cur, err := s.regs.Find(ctx, bson.M{"test_id": testID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []Registration
	for cur.Next(ctx) {
		var d registrationDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		r, err := s.registrationFromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, cur.Err()
}

func (s *MongoStore) RegistrationCounts(ctx context.Context) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$test_id"}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	cur, err := s.regs.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := map[string]int{}
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
			N  int    `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = row.N
	}
	return out, cur.Err()
}

func (s *MongoStore) SaveRegistrations(ctx context.Context, regs ...*Registration) error {
	for _, r := range regs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	for _, r := range regs {
		d := s.registrationToDoc(*r)
		if r.Version == 0 {
			d.Version = 1
			if _, err := s.regs.InsertOne(ctx, d); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return fmt.Errorf("registration %s/%s exists: %w", r.TestID, r.UserID, ErrConflict)
				}
				return err
			}
			r.Version = 1
			continue
		}
		d.Version = r.Version + 1
		res, err := s.regs.ReplaceOne(ctx, bson.M{"_id": d.ID, "version": r.Version}, d)
		if err != nil {
			return err
		}
		if res.MatchedCount != 1 {
			return fmt.Errorf("registration %s/%s at version %d: %w", r.TestID, r.UserID, r.Version, ErrConflict)
		}
		r.Version++
	}
	return nil
}

// Ping checks the server is reachable.
func (s *MongoStore) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) testFromDoc(d testDoc) (Test, error) {
	t := Test{ID: d.ID, AnswerKey: d.AnswerKey}
	var err error
	if t.Deadline, err = s.parse(d.Deadline); err != nil {
		return Test{}, err
	}
	if t.CheckTime, err = s.parse(d.CheckTime); err != nil {
		return Test{}, err
	}
	if t.CreatedAt, err = s.parse(d.CreatedAt); err != nil {
		return Test{}, err
	}
	return t, nil
}

func (s *MongoStore) registrationToDoc(r Registration) registrationDoc {
	d := registrationDoc{
		ID: registrationKey(r.TestID, r.UserID), TestID: r.TestID, UserID: r.UserID,
		Name: r.Name, Surname: r.Surname, RegisteredAt: s.format(r.RegisteredAt),
		Answers: r.Answers, Score: r.Score, RawCorrect: r.RawCorrect,
		WeightedScore: r.WeightedScore, Tier: r.Tier,
	}
	if r.SubmittedAt != nil {
		d.SubmittedAt = s.format(*r.SubmittedAt)
	}
	return d
}

func (s *MongoStore) registrationFromDoc(d registrationDoc) (Registration, error) {
	r := Registration{
		TestID: d.TestID, UserID: d.UserID, Name: d.Name, Surname: d.Surname,
		Answers: d.Answers, Score: d.Score, RawCorrect: d.RawCorrect,
		WeightedScore: d.WeightedScore, Tier: d.Tier, Version: d.Version,
	}
	var err error
	if r.RegisteredAt, err = s.parse(d.RegisteredAt); err != nil {
		return Registration{}, err
	}
	if d.SubmittedAt != "" {
		t, err := s.parse(d.SubmittedAt)
		if err != nil {
			return Registration{}, err
		}
		r.SubmittedAt = &t
	}
	return r, nil
}

func (s *MongoStore) format(t time.Time) string { return FormatTime(t.In(s.loc)) }

func (s *MongoStore) parse(v string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: stored timestamp %q", ErrInvalid, v)
	}
	return t, nil
}
