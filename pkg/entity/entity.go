// pkg/entity/entity.go
package entity

import (
	"github.com/EngoEngine/ecs"
	"github.com/go-gl/mathgl/mgl64"
)

// ID is a unique identifier for an entity. It is the id of the entity's
// ecs.BasicEntity, so systems and registries agree on it.
type ID uint64

// Entity is anything the simulation schedules.
type Entity interface {
	GetID() ID
	GetName() string
	GetPosition() mgl64.Vec3
	GetBasicEntity() *ecs.BasicEntity
}

// BaseEntity contains common functionality for all entities
type BaseEntity struct {
	ecs.BasicEntity
	Name   string
	Active bool
}

func newBaseEntity(name string) BaseEntity {
	return BaseEntity{
		BasicEntity: ecs.NewBasic(),
		Name:        name,
		Active:      true,
	}
}

// GetID returns the entity's unique identifier
func (e *BaseEntity) GetID() ID {
	return ID(e.BasicEntity.ID())
}

// GetName returns the entity's display name
func (e *BaseEntity) GetName() string {
	return e.Name
}
