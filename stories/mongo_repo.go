package stories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	// MongoRepo stores stories as documents in a MongoDB collection.
	MongoRepo struct {
		collection *mongo.Collection
	}

	storyDoc struct {
		ID             primitive.ObjectID `bson:"_id,omitempty"`
		Transcript     string             `bson:"transcript"`
		Title          string             `bson:"title"`
		TranslatedText string             `bson:"translatedText"`
		CulturalNotes  []string           `bson:"culturalNotes"`
		Summary        string             `bson:"summary"`
		AudioURL       string             `bson:"audioUrl"`
		AudioChecksum  string             `bson:"audioChecksum,omitempty"`
		LanguageCode   string             `bson:"languageCode,omitempty"`
		LanguageName   string             `bson:"languageName,omitempty"`
		Region         string             `bson:"region,omitempty"`
		SpeakerName    string             `bson:"speakerName,omitempty"`
		CreatedAt      time.Time          `bson:"createdAt"`
	}
)

func NewMongoRepo(collection *mongo.Collection) MongoRepo {
	return MongoRepo{collection}
}

// EnsureIndexes creates the indexes backing the newest-first listing queries.
func (r MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "region", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "languageName", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "languageCode", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating story indexes: %w", err)
	}
	return nil
}

func (r MongoRepo) CreateStory(ctx context.Context, s Story) (string, error) {
	doc := storyDoc{
		Transcript:     s.Transcript,
		Title:          s.Title,
		TranslatedText: s.TranslatedText,
		CulturalNotes:  nonNilNotes(s.CulturalNotes),
		Summary:        s.Summary,
		AudioURL:       s.AudioURL,
		AudioChecksum:  s.AudioChecksum,
		LanguageCode:   s.LanguageCode,
		LanguageName:   s.LanguageName,
		Region:         s.Region,
		SpeakerName:    s.SpeakerName,
		CreatedAt:      s.CreatedAt,
	}

	res, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("persisting story into mongo: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("persisting story into mongo: unexpected id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (r MongoRepo) GetStoryByID(ctx context.Context, id string) (Story, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Story{}, ErrNotFound
	}

	var doc storyDoc
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Story{}, ErrNotFound
	}
	if err != nil {
		return Story{}, fmt.Errorf("get story by id: %w", err)
	}

	return doc.story(), nil
}

func (r MongoRepo) ListStories(ctx context.Context, f ListFilter) ([]Story, error) {
	filter := bson.M{}
	switch {
	case f.Region != "":
		filter = bson.M{"region": f.Region}
	case f.Search != "":
		filter = bson.M{"$or": bson.A{
			bson.M{"languageName": f.Search},
			bson.M{"languageCode": f.Search},
		}}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer cursor.Close(ctx)

	res := []Story{}
	for cursor.Next(ctx) {
		var doc storyDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("list stories: decode: %w", err)
		}
		res = append(res, doc.story())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list stories: cursor: %w", err)
	}

	return res, nil
}

func (d storyDoc) story() Story {
	return Story{
		ID:             d.ID.Hex(),
		Transcript:     d.Transcript,
		Title:          d.Title,
		TranslatedText: d.TranslatedText,
		CulturalNotes:  nonNilNotes(d.CulturalNotes),
		Summary:        d.Summary,
		AudioURL:       d.AudioURL,
		AudioChecksum:  d.AudioChecksum,
		LanguageCode:   d.LanguageCode,
		LanguageName:   d.LanguageName,
		Region:         d.Region,
		SpeakerName:    d.SpeakerName,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}
