package repository

import (
	pipedomain "mailpilot-backend/internal/pipeline/domain"

	"gorm.io/gorm"
)

// ruleRepository implements RuleRepository
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new instance of ruleRepository
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(rule *pipedomain.Rule) error {
	return r.db.Create(rule).Error
}

func (r *ruleRepository) Update(rule *pipedomain.Rule) error {
	return r.db.Save(rule).Error
}

func (r *ruleRepository) Delete(id, userID string) error {
	return r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&pipedomain.Rule{}).Error
}

func (r *ruleRepository) FindByID(id string) (*pipedomain.Rule, error) {
	var rule pipedomain.Rule
	err := r.db.Where("id = ?", id).First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) FindActiveByUser(userID string) ([]*pipedomain.Rule, error) {
	var rules []*pipedomain.Rule
	err := r.db.Where("user_id = ? AND active = ?", userID, true).
		Order("priority DESC").
		Find(&rules).Error
	return rules, err
}

func (r *ruleRepository) FindByUser(userID string) ([]*pipedomain.Rule, error) {
	var rules []*pipedomain.Rule
	err := r.db.Where("user_id = ?", userID).
		Order("priority DESC").
		Find(&rules).Error
	return rules, err
}

func (r *ruleRepository) SearchByUser(userID, query string) ([]*pipedomain.Rule, error) {
	var rules []*pipedomain.Rule
	like := "%" + query + "%"
	err := r.db.Where("user_id = ? AND active = ? AND (rule_text ILIKE ? OR pattern ILIKE ?)", userID, true, like, like).
		Order("priority DESC").
		Limit(20).
		Find(&rules).Error
	return rules, err
}
