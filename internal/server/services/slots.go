package services

import (
	"fmt"

	"github.com/dmitrijs2005/landvault/internal/common"
	"github.com/dmitrijs2005/landvault/internal/server/models"
)

// slotRegistry lists the document types that permit multiple concurrent
// instances and their allowed slots. Every other type has the single
// implicit slot.
var slotRegistry = map[string][]string{
	"ownership-documents": {"D1", "D2"},
}

func allowedSlots(documentType string) []string {
	if slots, ok := slotRegistry[documentType]; ok {
		return slots
	}
	return []string{models.DefaultSlot}
}

// normalizeSlot resolves an absent slot to the default and rejects slots the
// document type does not permit.
func normalizeSlot(documentType, docSlot string) (string, error) {
	if docSlot == "" {
		docSlot = models.DefaultSlot
	}
	for _, allowed := range allowedSlots(documentType) {
		if docSlot == allowed {
			return docSlot, nil
		}
	}
	return "", fmt.Errorf("%w: slot %q is not allowed for document type %q", common.ErrValidation, docSlot, documentType)
}
