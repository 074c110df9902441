package repository

import (
	"log"

	crmdomain "mailpilot-backend/internal/crm/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const searchLimit = 10

// crmRepository implements CRMRepository
type crmRepository struct {
	db       *gorm.DB
	semantic SemanticContactSearch // nil when vector search is not configured
}

// NewCRMRepository creates a new instance of crmRepository
func NewCRMRepository(db *gorm.DB) CRMRepository {
	return &crmRepository{db: db}
}

// NewCRMRepositoryWithSemanticSearch wires an optional vector-backed
// contact search into the SQL repository.
func NewCRMRepositoryWithSemanticSearch(db *gorm.DB, semantic SemanticContactSearch) CRMRepository {
	return &crmRepository{db: db, semantic: semantic}
}

func (r *crmRepository) SearchDeals(userID, query string) ([]crmdomain.SearchHit, error) {
	var deals []crmdomain.Deal
	like := "%" + query + "%"
	err := r.db.Where("user_id = ? AND (name ILIKE ? OR address ILIKE ? OR keywords ILIKE ?)", userID, like, like, like).
		Limit(searchLimit).
		Find(&deals).Error
	if err != nil {
		return nil, err
	}

	hits := make([]crmdomain.SearchHit, 0, len(deals))
	for _, d := range deals {
		hits = append(hits, crmdomain.SearchHit{
			EntityType: "deal",
			EntityID:   d.ID,
			Title:      d.Name,
			Detail:     d.Address,
		})
	}
	return hits, nil
}

func (r *crmRepository) SearchContacts(userID, query string) ([]crmdomain.SearchHit, error) {
	var contacts []crmdomain.Contact
	like := "%" + query + "%"
	err := r.db.Where("user_id = ? AND (name ILIKE ? OR email ILIKE ? OR company ILIKE ?)", userID, like, like, like).
		Limit(searchLimit).
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	hits := make([]crmdomain.SearchHit, 0, len(contacts))
	seen := make(map[string]bool)
	for _, c := range contacts {
		hits = append(hits, crmdomain.SearchHit{
			EntityType: "contact",
			EntityID:   c.ID,
			Title:      c.Name,
			Detail:     c.Email,
		})
		seen[c.ID] = true
	}

	// Merge semantic matches behind the exact ones.
	if r.semantic != nil {
		ids, err := r.semantic.QueryContacts(query, searchLimit)
		if err != nil {
			log.Printf("[CRM] Semantic contact search failed (falling back to SQL only): %v", err)
			return hits, nil
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			var c crmdomain.Contact
			if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
				continue
			}
			hits = append(hits, crmdomain.SearchHit{
				EntityType: "contact",
				EntityID:   c.ID,
				Title:      c.Name,
				Detail:     c.Email,
			})
			seen[id] = true
		}
	}
	return hits, nil
}

func (r *crmRepository) SearchClients(userID, query string) ([]crmdomain.SearchHit, error) {
	var clients []crmdomain.Client
	like := "%" + query + "%"
	err := r.db.Where("user_id = ? AND (name ILIKE ? OR email ILIKE ? OR company ILIKE ?)", userID, like, like, like).
		Limit(searchLimit).
		Find(&clients).Error
	if err != nil {
		return nil, err
	}

	hits := make([]crmdomain.SearchHit, 0, len(clients))
	for _, c := range clients {
		hits = append(hits, crmdomain.SearchHit{
			EntityType: "client",
			EntityID:   c.ID,
			Title:      c.Name,
			Detail:     c.Company,
		})
	}
	return hits, nil
}

func (r *crmRepository) SearchProperties(userID, query string) ([]crmdomain.SearchHit, error) {
	var properties []crmdomain.Property
	like := "%" + query + "%"
	err := r.db.Where("user_id = ? AND (name ILIKE ? OR address ILIKE ?)", userID, like, like).
		Limit(searchLimit).
		Find(&properties).Error
	if err != nil {
		return nil, err
	}

	hits := make([]crmdomain.SearchHit, 0, len(properties))
	for _, p := range properties {
		hits = append(hits, crmdomain.SearchHit{
			EntityType: "property",
			EntityID:   p.ID,
			Title:      p.Name,
			Detail:     p.Address,
		})
	}
	return hits, nil
}

func (r *crmRepository) VerifyParticipant(dealID, emailAddress string) (bool, error) {
	var count int64
	err := r.db.Model(&crmdomain.DealParticipant{}).
		Where("deal_id = ? AND LOWER(email_address) = LOWER(?)", dealID, emailAddress).
		Count(&count).Error
	return count > 0, err
}

func (r *crmRepository) CreateActivity(activity *crmdomain.Activity) error {
	// A retried keep action replays activity writes; the email/entity
	// key makes the replay a no-op instead of a duplicate row.
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email_id"}, {Name: "entity_type"}, {Name: "entity_id"}},
		DoNothing: true,
	}).Create(activity).Error
}

func (r *crmRepository) AllContacts() ([]crmdomain.Contact, error) {
	var contacts []crmdomain.Contact
	if err := r.db.Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}
