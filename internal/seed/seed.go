// Package seed populates an empty deployment with the launch fleet and demo
// users for London, Milan and Rome.
package seed

import (
	"log"

	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
	"github.com/smartmove/fleet/internal/storage"
)

// Users returns the demo user roster.
func Users() []*fleet.User {
	return []*fleet.User{
		{ID: "U001", Name: "Alice Johnson"},
		{ID: "U002", Name: "Marco Rossi"},
		{ID: "U003", Name: "Giulia Bianchi"},
		{ID: "U004", Name: "Emma Wilson"},
		{ID: "U005", Name: "James Davies"},
	}
}

// Vehicles returns the launch fleet, positioned at their home docks.
func Vehicles() []*fleet.Vehicle {
	return []*fleet.Vehicle{
		// London
		fleet.NewVehicle("LON-B001", fleet.KindBicycle, "London", geo.Coordinate{Lat: 51.5074, Lon: -0.1278}, 100),
		fleet.NewVehicle("LON-B002", fleet.KindBicycle, "London", geo.Coordinate{Lat: 51.5200, Lon: -0.0850}, 100),
		fleet.NewVehicle("LON-ES001", fleet.KindScooter, "London", geo.Coordinate{Lat: 51.5155, Lon: -0.1168}, 90),
		fleet.NewVehicle("LON-ES002", fleet.KindScooter, "London", geo.Coordinate{Lat: 51.5300, Lon: -0.1000}, 45),
		fleet.NewVehicle("LON-M001", fleet.KindMoped, "London", geo.Coordinate{Lat: 51.5100, Lon: -0.1300}, 80),

		// Milan
		fleet.NewVehicle("MIL-B001", fleet.KindBicycle, "Milan", geo.Coordinate{Lat: 45.4642, Lon: 9.1900}, 100),
		fleet.NewVehicle("MIL-ES001", fleet.KindScooter, "Milan", geo.Coordinate{Lat: 45.4700, Lon: 9.1800}, 70),
		fleet.NewVehicle("MIL-M001", fleet.KindMoped, "Milan", geo.Coordinate{Lat: 45.4730, Lon: 9.1920}, 88),
		fleet.NewVehicle("MIL-M002", fleet.KindMoped, "Milan", geo.Coordinate{Lat: 45.4600, Lon: 9.2000}, 60),

		// Rome
		fleet.NewVehicle("ROM-B001", fleet.KindBicycle, "Rome", geo.Coordinate{Lat: 41.9028, Lon: 12.4964}, 100),
		fleet.NewVehicle("ROM-ES001", fleet.KindScooter, "Rome", geo.Coordinate{Lat: 41.9350, Lon: 12.5150}, 55),
		fleet.NewVehicle("ROM-ES002", fleet.KindScooter, "Rome", geo.Coordinate{Lat: 41.9100, Lon: 12.4800}, 85),
		fleet.NewVehicle("ROM-M001", fleet.KindMoped, "Rome", geo.Coordinate{Lat: 41.8950, Lon: 12.5000}, 75),
	}
}

// EnsureSeeded populates the stores when they are empty, so a fresh data
// directory boots with a usable fleet. Existing data is never overwritten.
func EnsureSeeded(vehicles *storage.VehicleStore, users *storage.UserStore) error {
	if users.Len() == 0 {
		for _, u := range Users() {
			if err := users.Save(u); err != nil {
				return err
			}
		}
		log.Printf("[Seed] Created %d users", users.Len())
	}
	if vehicles.Len() == 0 {
		for _, v := range Vehicles() {
			vehicles.Put(v)
		}
		if err := vehicles.SaveAll(); err != nil {
			return err
		}
		log.Printf("[Seed] Created %d vehicles", vehicles.Len())
	}
	return nil
}
