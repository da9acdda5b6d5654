package db

import "time"

// VectorDimensions is the width of techwatch.item_vectors.embedding.
const VectorDimensions = 384

// Item maps techwatch.items.
type Item struct {
	ItemID           int64      `gorm:"column:item_id;primaryKey;autoIncrement"`
	Topic            string     `gorm:"column:topic;type:text;not null"`
	Title            string     `gorm:"column:title;type:text;not null"`
	ContentText      string     `gorm:"column:content_text;type:text;not null;default:''"`
	SourceType       string     `gorm:"column:source_type;type:text;not null;default:community"`
	SourceURL        *string    `gorm:"column:source_url;type:text"`
	Score            float64    `gorm:"column:score;type:double precision;not null;default:0"`
	ClusterCount     int        `gorm:"column:cluster_count;type:integer;not null;default:1"`
	Status           string     `gorm:"column:status;type:text;not null;default:new"`
	EmbeddingRef     *string    `gorm:"column:embedding_ref;type:uuid"`
	Summary          string     `gorm:"column:summary;type:text;not null;default:''"`
	Priority         int        `gorm:"column:priority;type:integer;not null;default:0"`
	Keywords         string     `gorm:"column:keywords;type:text;not null;default:''"`
	EvaluationFailed bool       `gorm:"column:evaluation_failed;type:boolean;not null;default:false"`
	SupersededBy     *int64     `gorm:"column:superseded_by;type:bigint"`
	FetchedAt        time.Time  `gorm:"column:fetched_at;type:timestamptz;not null;default:now()"`
	EvaluatedAt      *time.Time `gorm:"column:evaluated_at;type:timestamptz"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Item) TableName() string { return "techwatch.items" }

// ItemVector maps techwatch.item_vectors, the similarity index partitioned by
// topic.
type ItemVector struct {
	Ref       string    `gorm:"column:ref;type:uuid;primaryKey"`
	ItemID    int64     `gorm:"column:item_id;type:bigint;not null"`
	Topic     string    `gorm:"column:topic;type:text;not null"`
	Embedding string    `gorm:"column:embedding;type:vector(384);not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ItemVector) TableName() string { return "techwatch.item_vectors" }

// DedupEvent maps techwatch.dedup_events.
type DedupEvent struct {
	DedupEventID     int64     `gorm:"column:dedup_event_id;primaryKey;autoIncrement"`
	ItemID           int64     `gorm:"column:item_id;type:bigint;not null"`
	Relation         string    `gorm:"column:relation;type:text;not null"`
	RepresentativeID *int64    `gorm:"column:representative_id;type:bigint"`
	PreviousRef      *string   `gorm:"column:previous_ref;type:uuid"`
	NewRef           *string   `gorm:"column:new_ref;type:uuid"`
	Similarity       *float64  `gorm:"column:similarity;type:double precision"`
	ScoreBefore      *float64  `gorm:"column:score_before;type:double precision"`
	ScoreAfter       *float64  `gorm:"column:score_after;type:double precision"`
	UsedFallback     bool      `gorm:"column:used_fallback;type:boolean;not null;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DedupEvent) TableName() string { return "techwatch.dedup_events" }

func autoMigrateModels() []any {
	return []any{
		&Item{},
		&ItemVector{},
		&DedupEvent{},
	}
}
