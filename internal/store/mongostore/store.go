// Package mongostore is the MongoDB-backed implementation of the store.Store interface,
// following the connection/collection-access conventions of pkg/database.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/store"
	"github.com/fleetward/fleetward/pkg/database"
)

const (
	collUsers     = "users"
	collSessions  = "sessions"
	collMinions   = "minions"
	collEvents    = "events"
	collJobs      = "jobs"
	collReturns   = "job_returns"
	collGroups    = "permission_groups"
	collMembers   = "permission_group_users"
	collPresets   = "minion_presets"
)

// Store wraps a database.Client and implements store.Store against MongoDB collections.
type Store struct {
	db *database.Client
}

// New returns a MongoDB-backed Store.
func New(db *database.Client) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.col(collUsers).InsertOne(ctx, u)
	return wrapStorage(err)
}

func (s *Store) ListUsers(ctx context.Context, page store.Page) ([]*models.User, error) {
	opts := options.Find().SetLimit(nonZero(page.Limit, 100)).SetSkip(page.Offset)
	cur, err := s.col(collUsers).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer cur.Close(ctx)
	var out []*models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapStorage(err)
	}
	return out, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findOneUser(ctx, bson.M{"_id": id})
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOneUser(ctx, bson.M{"username": username})
}

func (s *Store) findOneUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	err := s.col(collUsers).FindOne(ctx, filter).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	_, err := s.col(collUsers).ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	return wrapStorage(err)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	_, err := s.col(collUsers).DeleteOne(ctx, bson.M{"_id": id})
	return wrapStorage(err)
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *models.SessionToken) error {
	_, err := s.col(collSessions).InsertOne(ctx, sess)
	return wrapStorage(err)
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.SessionToken, error) {
	var sess models.SessionToken
	err := s.col(collSessions).FindOne(ctx, bson.M{"_id": id}).Decode(&sess)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &sess, nil
}

func (s *Store) UpdateSessionMasterToken(ctx context.Context, id string, masterTokenBlob string) error {
	_, err := s.col(collSessions).UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"masterTokenBlob": masterTokenBlob}})
	return wrapStorage(err)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.col(collSessions).DeleteOne(ctx, bson.M{"_id": id})
	return wrapStorage(err)
}

// --- Minions ---

func (s *Store) ListMinions(ctx context.Context, filter store.MinionFilter, sort store.MinionSort, page store.Page) ([]*models.Minion, error) {
	q := bson.M{}
	if filter.Query != "" {
		q["_id"] = bson.M{"$regex": filter.Query, "$options": "i"}
	}
	sortDoc := bson.D{{Key: "_id", Value: 1}}
	if sort == store.MinionSortLastSeenDesc {
		sortDoc = bson.D{{Key: "lastSeen", Value: -1}}
	}
	opts := options.Find().SetSort(sortDoc).SetLimit(nonZero(page.Limit, 100)).SetSkip(page.Offset)
	cur, err := s.col(collMinions).Find(ctx, q, opts)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer cur.Close(ctx)
	var out []*models.Minion
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapStorage(err)
	}
	return out, nil
}

func (s *Store) GetMinion(ctx context.Context, id string) (*models.Minion, error) {
	var m models.Minion
	err := s.col(collMinions).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &m, nil
}

// UpsertMinion is the single sparse mutator backing the Minion Materializer (§4.7). It is
// idempotent: the same (id, seenAt, fields) applied twice produces byte-equal stored
// state, because every write is a $set of the same concrete values, never an increment.
func (s *Store) UpsertMinion(ctx context.Context, id string, seenAt time.Time, fields models.MinionUpsertFields) error {
	set := bson.M{"lastSeen": seenAt}
	if fields.Grains != nil {
		set["grains"] = *fields.Grains
		set["lastUpdatedGrains"] = seenAt
		if osType, ok := extractOsType(*fields.Grains); ok {
			set["osType"] = osType
		}
	}
	if fields.Pillars != nil {
		set["pillars"] = *fields.Pillars
		set["lastUpdatedPillars"] = seenAt
	}
	if fields.Pkgs != nil {
		set["pkgs"] = *fields.Pkgs
		set["lastUpdatedPkgs"] = seenAt
	}
	if fields.Conformity != nil {
		set["conformity"] = *fields.Conformity
		set["lastUpdatedConformity"] = seenAt
	}
	if fields.ConformitySuccess != nil {
		set["conformitySuccess"] = *fields.ConformitySuccess
	}
	if fields.ConformityIncorrect != nil {
		set["conformityIncorrect"] = *fields.ConformityIncorrect
	}
	if fields.ConformityError != nil {
		set["conformityError"] = *fields.ConformityError
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.col(collMinions).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Tolerate a concurrent insert racing this upsert by retrying the update once.
		_, err = s.col(collMinions).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts)
	}
	return wrapStorage(err)
}

func (s *Store) DeleteMinion(ctx context.Context, id string) error {
	_, err := s.col(collMinions).DeleteOne(ctx, bson.M{"_id": id})
	return wrapStorage(err)
}

func (s *Store) PruneMinions(ctx context.Context, knownIDs []string) error {
	_, err := s.col(collMinions).DeleteMany(ctx, bson.M{"_id": bson.M{"$nin": knownIDs}})
	return wrapStorage(err)
}

// --- Events ---

func (s *Store) InsertEvent(ctx context.Context, e *models.Event) error {
	_, err := s.col(collEvents).InsertOne(ctx, e)
	return wrapStorage(err)
}

func (s *Store) ListEvents(ctx context.Context, page store.Page) ([]*models.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(nonZero(page.Limit, 100)).SetSkip(page.Offset)
	cur, err := s.col(collEvents).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer cur.Close(ctx)
	var out []*models.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapStorage(err)
	}
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	err := s.col(collEvents).FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &e, nil
}

// --- Jobs ---

func (s *Store) InsertJob(ctx context.Context, j *models.Job) error {
	_, err := s.col(collJobs).InsertOne(ctx, j)
	return wrapStorage(err)
}

func (s *Store) ListJobs(ctx context.Context, page store.Page) ([]*models.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(nonZero(page.Limit, 100)).SetSkip(page.Offset)
	cur, err := s.col(collJobs).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer cur.Close(ctx)
	var out []*models.Job
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapStorage(err)
	}
	return out, nil
}

func (s *Store) GetJobByJid(ctx context.Context, jid string) (*models.Job, error) {
	var j models.Job
	err := s.col(collJobs).FindOne(ctx, bson.M{"jid": jid}).Decode(&j)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &j, nil
}

func (s *Store) InsertJobReturn(ctx context.Context, r *models.JobReturn) error {
	_, err := s.col(collReturns).InsertOne(ctx, r)
	return wrapStorage(err)
}

func (s *Store) ListJobReturnsByJob(ctx context.Context, jobID string) ([]*models.JobReturn, error) {
	cur, err := s.col(collReturns).Find(ctx, bson.M{"jobId": jobID})
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer cur.Close(ctx)
	var out []*models.JobReturn
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapStorage(err)
	}
	return out, nil
}

// --- Groups & membership ---

func (s *Store) CreateGroup(ctx context.Context, g *models.PermissionGroup) error {
	_, err := s.col(collGroups).InsertOne(ctx, g)
	return wrapStorage(err)
}

func (s *Store) ListGroups(ctx context.Context) ([]*models.PermissionGroup, error) {
	cur, err := s.col(collGroups).Find(ctx, bson.M{})
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer cur.Close(ctx)
	var out []*models.PermissionGroup
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapStorage(err)
	}
	return out, nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*models.PermissionGroup, error) {
	return s.findOneGroup(ctx, bson.M{"_id": id})
}

func (s *Store) GetGroupByDirectoryRef(ctx context.Context, ref string) (*models.PermissionGroup, error) {
	return s.findOneGroup(ctx, bson.M{"directoryRef": ref})
}

func (s *Store) findOneGroup(ctx context.Context, filter bson.M) (*models.PermissionGroup, error) {
	var g models.PermissionGroup
	err := s.col(collGroups).FindOne(ctx, filter).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &g, nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *models.PermissionGroup) error {
	_, err := s.col(collGroups).ReplaceOne(ctx, bson.M{"_id": g.ID}, g)
	return wrapStorage(err)
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	_, err := s.col(collGroups).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return wrapStorage(err)
	}
	_, err = s.col(collMembers).DeleteMany(ctx, bson.M{"groupId": id})
	return wrapStorage(err)
}

func (s *Store) AddMembership(ctx context.Context, userID, groupID string) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.col(collMembers).UpdateOne(ctx,
		bson.M{"userId": userID, "groupId": groupID},
		bson.M{"$set": bson.M{"userId": userID, "groupId": groupID}}, opts)
	return wrapStorage(err)
}

func (s *Store) RemoveMembership(ctx context.Context, userID, groupID string) error {
	_, err := s.col(collMembers).DeleteOne(ctx, bson.M{"userId": userID, "groupId": groupID})
	return wrapStorage(err)
}

func (s *Store) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	n, err := s.col(collMembers).CountDocuments(ctx, bson.M{"userId": userID, "groupId": groupID})
	if err != nil {
		return false, wrapStorage(err)
	}
	return n > 0, nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]*models.PermissionGroup, error) {
	cur, err := s.col(collMembers).Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer cur.Close(ctx)
	var links []models.Membership
	if err := cur.All(ctx, &links); err != nil {
		return nil, wrapStorage(err)
	}
	out := make([]*models.PermissionGroup, 0, len(links))
	for _, l := range links {
		g, err := s.GetGroup(ctx, l.GroupID)
		if err != nil {
			return nil, err
		}
		if g != nil {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) ListUsersForGroup(ctx context.Context, groupID string) ([]*models.User, error) {
	cur, err := s.col(collMembers).Find(ctx, bson.M{"groupId": groupID})
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer cur.Close(ctx)
	var links []models.Membership
	if err := cur.All(ctx, &links); err != nil {
		return nil, wrapStorage(err)
	}
	out := make([]*models.User, 0, len(links))
	for _, l := range links {
		u, err := s.GetUserByID(ctx, l.UserID)
		if err != nil {
			return nil, err
		}
		if u != nil {
			out = append(out, u)
		}
	}
	return out, nil
}

// --- Presets ---

func (s *Store) CreatePreset(ctx context.Context, p *models.MinionPreset) error {
	_, err := s.col(collPresets).InsertOne(ctx, p)
	return wrapStorage(err)
}

func (s *Store) ListPresets(ctx context.Context) ([]*models.MinionPreset, error) {
	cur, err := s.col(collPresets).Find(ctx, bson.M{})
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer cur.Close(ctx)
	var out []*models.MinionPreset
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapStorage(err)
	}
	return out, nil
}

func (s *Store) GetPreset(ctx context.Context, id string) (*models.MinionPreset, error) {
	var p models.MinionPreset
	err := s.col(collPresets).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &p, nil
}

func (s *Store) UpdatePreset(ctx context.Context, p *models.MinionPreset) error {
	_, err := s.col(collPresets).ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	return wrapStorage(err)
}

func (s *Store) DeletePreset(ctx context.Context, id string) error {
	_, err := s.col(collPresets).DeleteOne(ctx, bson.M{"_id": id})
	return wrapStorage(err)
}

// --- Status ---

func (s *Store) CountMinions(ctx context.Context) (int64, error) {
	n, err := s.col(collMinions).CountDocuments(ctx, bson.M{})
	return n, wrapStorage(err)
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.col(collUsers).CountDocuments(ctx, bson.M{})
	return n, wrapStorage(err)
}

func nonZero(v, fallback int64) int64 {
	if v <= 0 {
		return fallback
	}
	return v
}
