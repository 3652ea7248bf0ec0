// occupancy.go: the per-binding busy bit written by the camera scheduler and
// read by the reservation ledger.
package datastore

import (
	"fmt"

	"roomwatch/internal/errors"
)

// GetCameraBindings returns the bindings in stable id order; the scheduler
// walks this list round-robin.
func (ds *DataStore) GetCameraBindings() ([]CameraBinding, error) {
	var bindings []CameraBinding
	if err := ds.DB.Order("id ASC").Find(&bindings).Error; err != nil {
		return nil, fmt.Errorf("failed to load camera bindings: %w", err)
	}
	return bindings, nil
}

// SetBindingBusy overwrites the busy bit for one binding. The bit carries no
// history; it reflects only the most recently completed sampling window.
func (ds *DataStore) SetBindingBusy(id uint, busy bool) error {
	res := ds.DB.Model(&CameraBinding{}).
		Where("id = ?", id).
		Update("busy", busy)
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("binding_id", id).
			Build()
	}
	if res.RowsAffected == 0 {
		return errors.Newf("camera binding %d does not exist", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// Occupancy returns the per-room busy view for the control API and the
// binary adapter.
func (ds *DataStore) Occupancy() ([]RoomOccupancy, error) {
	var out []RoomOccupancy
	err := ds.DB.Model(&CameraBinding{}).
		Select("rooms.id AS room_id, rooms.name AS room_name, rooms.number AS room_number, rooms.zone AS zone, camera_bindings.busy AS busy").
		Joins("JOIN rooms ON rooms.id = camera_bindings.room_id").
		Order("rooms.number ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load occupancy view: %w", err)
	}
	return out, nil
}
