// Package mongodb is the document-store backend. Every mutation is a single
// conditional write on one document, so no multi-document transaction is needed.
package mongodb

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"vibeconnect/errs"
	"vibeconnect/models"
)

const (
	collUsers         = "users"
	collRelationships = "relationships"
	collMessages      = "messages"
	collPosts         = "posts"
)

type Store struct {
	db     *mongo.Database
	logger *zap.Logger
}

func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("mongo")}
}

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, pkgerrors.Wrap(err, "ping mongo")
	}
	return client, nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collUsers: {{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_username"),
		}},
		collRelationships: {
			{Keys: bson.D{{Key: "user_low", Value: 1}}, Options: options.Index().SetName("ix_low")},
			{Keys: bson.D{{Key: "user_high", Value: 1}}, Options: options.Index().SetName("ix_high")},
		},
		collMessages: {
			{
				Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "client_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_sender_client").
					SetPartialFilterExpression(bson.M{"client_id": bson.M{"$exists": true}}),
			},
			{
				Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "created_at", Value: 1}},
				Options: options.Index().SetName("ix_pair_time"),
			},
			{
				Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("ix_recipient_time"),
			},
		},
		collPosts: {{
			Keys:    bson.D{{Key: "author_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("ix_author_time"),
		}},
	}

	for coll, specs := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, specs); err != nil {
			return pkgerrors.Wrapf(err, "create indexes on %s", coll)
		}
	}
	s.logger.Info("mongo indexes ready")
	return nil
}

func classify(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return errs.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return errs.ErrDuplicate
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return errs.Transient(pkgerrors.Wrap(err, op))
	}
	return pkgerrors.Wrap(err, op)
}

// Users

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	_, err := s.db.Collection(collUsers).UpdateOne(ctx,
		bson.M{"_id": user.ID},
		bson.M{
			"$set": bson.M{
				"username":     user.Username,
				"display_name": user.DisplayName,
				"avatar_url":   user.AvatarURL,
				"bio":          user.Bio,
				"updated_at":   user.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": user.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return classify(err, "upsert user")
	}
	stored, err := s.GetUser(ctx, user.ID)
	if err != nil {
		return err
	}
	user.CreatedAt = stored.CreatedAt
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.Collection(collUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, classify(err, "get user")
	}
	return &u, nil
}

func (s *Store) findUsers(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.User, error) {
	cur, err := s.db.Collection(collUsers).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "find users")
	}
	users := make([]models.User, 0)
	if err := cur.All(ctx, &users); err != nil {
		return nil, classify(err, "find users")
	}
	return users, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	return s.findUsers(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *Store) ListUsersExcluding(ctx context.Context, exclude []string, limit int) ([]models.User, error) {
	filter := bson.M{}
	if len(exclude) > 0 {
		filter["_id"] = bson.M{"$nin": exclude}
	}
	return s.findUsers(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit)))
}

// Relationships

// relationshipDoc stores one edge under a deterministic id so the pair can
// never have two documents.
type relationshipDoc struct {
	ID          string                   `bson:"_id"`
	UserLow     string                   `bson:"user_low"`
	UserHigh    string                   `bson:"user_high"`
	State       models.RelationshipState `bson:"state"`
	RequesterID string                   `bson:"requester_id"`
	CreatedAt   time.Time                `bson:"created_at"`
	UpdatedAt   time.Time                `bson:"updated_at"`
}

func pairID(a, b string) string {
	low, high := models.OrderPair(a, b)
	return low + ":" + high
}

func (d *relationshipDoc) model() models.Relationship {
	return models.Relationship{
		UserLow:     d.UserLow,
		UserHigh:    d.UserHigh,
		State:       d.State,
		RequesterID: d.RequesterID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (s *Store) GetRelationship(ctx context.Context, a, b string) (*models.Relationship, error) {
	var doc relationshipDoc
	err := s.db.Collection(collRelationships).FindOne(ctx, bson.M{"_id": pairID(a, b)}).Decode(&doc)
	if err != nil {
		return nil, classify(err, "get relationship")
	}
	rel := doc.model()
	return &rel, nil
}

func (s *Store) CreateRelationship(ctx context.Context, rel models.Relationship) error {
	_, err := s.db.Collection(collRelationships).InsertOne(ctx, relationshipDoc{
		ID:          pairID(rel.UserLow, rel.UserHigh),
		UserLow:     rel.UserLow,
		UserHigh:    rel.UserHigh,
		State:       rel.State,
		RequesterID: rel.RequesterID,
		CreatedAt:   rel.CreatedAt,
		UpdatedAt:   rel.UpdatedAt,
	})
	return classify(err, "create relationship")
}

func (s *Store) AcceptRelationship(ctx context.Context, requester, target string, at time.Time) error {
	res, err := s.db.Collection(collRelationships).UpdateOne(ctx,
		bson.M{"_id": pairID(requester, target), "state": models.StatePending, "requester_id": requester},
		bson.M{"$set": bson.M{"state": models.StateFriends, "updated_at": at}},
	)
	if err != nil {
		return classify(err, "accept relationship")
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePendingRelationship(ctx context.Context, requester, target string) error {
	res, err := s.db.Collection(collRelationships).DeleteOne(ctx,
		bson.M{"_id": pairID(requester, target), "state": models.StatePending, "requester_id": requester})
	if err != nil {
		return classify(err, "delete pending relationship")
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteFriendship(ctx context.Context, a, b string) error {
	_, err := s.db.Collection(collRelationships).DeleteOne(ctx,
		bson.M{"_id": pairID(a, b), "state": models.StateFriends})
	return classify(err, "delete friendship")
}

func (s *Store) ListRelationships(ctx context.Context, userID string) ([]models.Relationship, error) {
	cur, err := s.db.Collection(collRelationships).Find(ctx,
		bson.M{"$or": bson.A{bson.M{"user_low": userID}, bson.M{"user_high": userID}}},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	)
	if err != nil {
		return nil, classify(err, "list relationships")
	}
	var docs []relationshipDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err, "list relationships")
	}
	rels := make([]models.Relationship, 0, len(docs))
	for i := range docs {
		rels = append(rels, docs[i].model())
	}
	return rels, nil
}

// Messages

func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.Collection(collMessages).InsertOne(ctx, msg)
	return classify(err, "insert message")
}

func (s *Store) FindMessageByClientID(ctx context.Context, senderID, clientID string) (*models.Message, error) {
	var m models.Message
	err := s.db.Collection(collMessages).FindOne(ctx, bson.M{"sender_id": senderID, "client_id": clientID}).Decode(&m)
	if err != nil {
		return nil, classify(err, "find message")
	}
	return &m, nil
}

func (s *Store) findMessages(ctx context.Context, filter bson.M, dir int) ([]models.Message, error) {
	cur, err := s.db.Collection(collMessages).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}}))
	if err != nil {
		return nil, classify(err, "list messages")
	}
	msgs := make([]models.Message, 0)
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, classify(err, "list messages")
	}
	return msgs, nil
}

func (s *Store) ListMessagesBetween(ctx context.Context, a, b string) ([]models.Message, error) {
	return s.findMessages(ctx, bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "recipient_id": b},
		bson.M{"sender_id": b, "recipient_id": a},
	}}, 1)
}

func (s *Store) ListMessagesFor(ctx context.Context, userID string) ([]models.Message, error) {
	return s.findMessages(ctx, bson.M{"$or": bson.A{
		bson.M{"sender_id": userID},
		bson.M{"recipient_id": userID},
	}}, -1)
}

func (s *Store) MarkRead(ctx context.Context, recipientID, senderID string) (int64, error) {
	res, err := s.db.Collection(collMessages).UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "sender_id": senderID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, classify(err, "mark read")
	}
	return res.ModifiedCount, nil
}

// Posts

func (s *Store) InsertPost(ctx context.Context, post *models.Post) error {
	_, err := s.db.Collection(collPosts).InsertOne(ctx, post)
	return classify(err, "insert post")
}

func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var p models.Post
	if err := s.db.Collection(collPosts).FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, classify(err, "get post")
	}
	return &p, nil
}

func (s *Store) UpdatePostContent(ctx context.Context, id, content string, at time.Time) error {
	res, err := s.db.Collection(collPosts).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"content": content, "updated_at": at}},
	)
	if err != nil {
		return classify(err, "update post")
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.Collection(collPosts).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(err, "delete post")
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	if len(authorIDs) == 0 {
		return []models.Post{}, nil
	}
	cur, err := s.db.Collection(collPosts).Find(ctx,
		bson.M{"author_id": bson.M{"$in": authorIDs}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, classify(err, "list posts")
	}
	posts := make([]models.Post, 0)
	if err := cur.All(ctx, &posts); err != nil {
		return nil, classify(err, "list posts")
	}
	return posts, nil
}

// toggleLikeUpdate flips userID's membership in likes in one pipeline update,
// keeping the order of the remaining likes.
func toggleLikeUpdate(userID string) mongo.Pipeline {
	return mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"likes": bson.M{"$cond": bson.A{
			bson.M{"$in": bson.A{userID, bson.M{"$ifNull": bson.A{"$likes", bson.A{}}}}},
			bson.M{"$filter": bson.M{
				"input": "$likes",
				"cond":  bson.M{"$ne": bson.A{"$$this", userID}},
			}},
			bson.M{"$concatArrays": bson.A{bson.M{"$ifNull": bson.A{"$likes", bson.A{}}}, bson.A{userID}}},
		}},
	}}}}
}

func (s *Store) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	var p models.Post
	err := s.db.Collection(collPosts).FindOneAndUpdate(ctx,
		bson.M{"_id": postID},
		toggleLikeUpdate(userID),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		return false, classify(err, "toggle like")
	}
	return p.LikedBy(userID), nil
}

func (s *Store) AppendComment(ctx context.Context, postID string, comment models.Comment) error {
	res, err := s.db.Collection(collPosts).UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$push": bson.M{"comments": comment}},
	)
	if err != nil {
		return classify(err, "append comment")
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, postID, commentID string) error {
	res, err := s.db.Collection(collPosts).UpdateOne(ctx,
		bson.M{"_id": postID, "comments._id": commentID},
		bson.M{"$pull": bson.M{"comments": bson.M{"_id": commentID}}},
	)
	if err != nil {
		return classify(err, "delete comment")
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}
