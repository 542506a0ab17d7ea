package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
)

const collectionTasks = "tasks"

type TaskRepository struct {
	col *mongo.Collection
}

var _ ports.TaskRepository = (*TaskRepository)(nil)

func NewTaskRepository(db *mongo.Database) *TaskRepository {
	return &TaskRepository{col: db.Collection(collectionTasks)}
}

type taskDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Title         string             `bson:"title"`
	Description   string             `bson:"description"`
	Status        string             `bson:"status"`
	Priority      string             `bson:"priority"`
	DueDate       string             `bson:"due_date,omitempty"`
	AssigneeID    *int64             `bson:"assignee_id,omitempty"`
	CreatorID     int64              `bson:"creator_id"`
	SourceEventID string             `bson:"source_event_id,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

func toDoc(t *domain.Task) taskDoc {
	return taskDoc{
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		DueDate:       t.DueDate,
		AssigneeID:    t.AssigneeID,
		CreatorID:     t.CreatorID,
		SourceEventID: t.SourceEventID,
		CreatedAt:     t.CreatedAt.UTC(),
		UpdatedAt:     t.UpdatedAt.UTC(),
	}
}

func (d *taskDoc) toDomain() *domain.Task {
	return &domain.Task{
		ID:            d.ID.Hex(),
		Title:         d.Title,
		Description:   d.Description,
		Status:        domain.TaskStatus(d.Status),
		Priority:      domain.Priority(d.Priority),
		DueDate:       d.DueDate,
		AssigneeID:    d.AssigneeID,
		CreatorID:     d.CreatorID,
		SourceEventID: d.SourceEventID,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

// InsertFromEvent upserts on source_event_id with $setOnInsert, so a
// redelivered event leaves the first document untouched. task.ID is set to
// the stored document's id either way.
func (r *TaskRepository) InsertFromEvent(ctx context.Context, task *domain.Task) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if task.SourceEventID == "" {
		return fmt.Errorf("insert task: missing source event id")
	}

	doc := toDoc(task)
	doc.ID = primitive.NewObjectID()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"source_event_id": task.SourceEventID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if res.UpsertedCount == 1 {
		task.ID = doc.ID.Hex()
		return nil
	}

	var existing taskDoc
	if err := r.col.FindOne(ctx, bson.M{"source_event_id": task.SourceEventID}).Decode(&existing); err != nil {
		return fmt.Errorf("insert task: load existing: %w", err)
	}
	task.ID = existing.ID.Hex()
	return nil
}

// FindByID returns domain.ErrTaskNotFound for unknown and malformed ids.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrTaskNotFound
	}

	var d taskDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return d.toDomain(), nil
}

func listFilter(f ports.ListTasksFilter) bson.M {
	filter := bson.M{}
	if f.UserID != 0 {
		filter["$or"] = bson.A{
			bson.M{"creator_id": f.UserID},
			bson.M{"assignee_id": f.UserID},
		}
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return filter
}

func (r *TaskRepository) List(ctx context.Context, f ports.ListTasksFilter) ([]*domain.Task, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := listFilter(f)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer cur.Close(ctx)

	tasks := make([]*domain.Task, 0, f.Limit)
	for cur.Next(ctx) {
		var d taskDoc
		if err := cur.Decode(&d); err != nil {
			return nil, 0, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, d.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

func patchUpdate(p ports.TaskPatch) bson.M {
	set := bson.M{"updated_at": p.UpdatedAt.UTC()}
	update := bson.M{"$set": set}
	if p.Status != nil {
		set["status"] = string(*p.Status)
	}
	if p.Priority != nil {
		set["priority"] = string(*p.Priority)
	}
	if p.AssigneeID != nil {
		set["assignee_id"] = *p.AssigneeID
	}
	if p.DueDate != nil {
		if *p.DueDate == "" {
			update["$unset"] = bson.M{"due_date": ""}
		} else {
			set["due_date"] = *p.DueDate
		}
	}
	return update
}

func (r *TaskRepository) Update(ctx context.Context, id string, p ports.TaskPatch) (*domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrTaskNotFound
	}

	var d taskDoc
	err = r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		patchUpdate(p),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return d.toDomain(), nil
}

// EnsureIndexes creates the indexes the list queries and the ingestion
// upsert rely on. source_event_id is unique where present; seeded documents
// created outside the queue have none.
func (r *TaskRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: 1}}},
		{Keys: bson.D{{Key: "assignee_id", Value: 1}}},
		{Keys: bson.D{{Key: "creator_id", Value: 1}}},
		{
			Keys: bson.D{{Key: "source_event_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"source_event_id": bson.M{"$exists": true}}),
		},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
