package repository

import (
	crmdomain "mailpilot-backend/internal/crm/domain"
)

// CRMRepository is the read-mostly view of the CRM entity store the
// agent searches, plus the activity write path.
type CRMRepository interface {
	SearchDeals(userID, query string) ([]crmdomain.SearchHit, error)
	SearchContacts(userID, query string) ([]crmdomain.SearchHit, error)
	SearchClients(userID, query string) ([]crmdomain.SearchHit, error)
	SearchProperties(userID, query string) ([]crmdomain.SearchHit, error)

	// VerifyParticipant confirms a sender address is involved in a deal.
	VerifyParticipant(dealID, emailAddress string) (bool, error)

	CreateActivity(activity *crmdomain.Activity) error

	// AllContacts feeds the vector index rebuild.
	AllContacts() ([]crmdomain.Contact, error)
}

// SemanticContactSearch is an optional vector-backed contact lookup
// merged into SearchContacts results when configured. It returns
// contact ids ranked by embedding distance.
type SemanticContactSearch interface {
	QueryContacts(query string, limit int) ([]string, error)
}
