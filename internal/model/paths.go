package model

import "strings"

const (
	collOrganizations   = "organizations"
	collSlots           = "slots"
	collCustomers       = "customers"
	collBookings        = "bookings"
	collBookedSlots     = "bookedSlots"
	collAttendedSlots   = "attendedSlots"
	collSlotsByDay      = "slotsByDay"
	collAttendance      = "attendance"
	collBookingCounts   = "slotBookingsCounts"
	collHandlerReceipts = "handlerReceipts"
	paramOrganization   = "{organization}"
	paramSlotID         = "{slotId}"
	paramCustomerID     = "{customerId}"
	paramSecretKey      = "{secretKey}"
)

// Change patterns the aggregate handlers subscribe to.
var (
	SlotPattern         = join(collOrganizations, paramOrganization, collSlots, paramSlotID)
	CustomerPattern     = join(collOrganizations, paramOrganization, collCustomers, paramCustomerID)
	BookedSlotPattern   = join(collOrganizations, paramOrganization, collBookings, paramSecretKey, collBookedSlots, paramSlotID)
	AttendedSlotPattern = join(collOrganizations, paramOrganization, collBookings, paramSecretKey, collAttendedSlots, paramSlotID)
)

// Pattern parameter names.
const (
	ParamOrganization = "organization"
	ParamSlotID       = "slotId"
	ParamCustomerID   = "customerId"
	ParamSecretKey    = "secretKey"
)

func join(parts ...string) string {
	return strings.Join(parts, "/")
}

func OrganizationsCollection() string { return collOrganizations }

func OrganizationPath(org string) string { return join(collOrganizations, org) }

func SlotsCollection(org string) string { return join(collOrganizations, org, collSlots) }

func SlotPath(org, slotID string) string { return join(SlotsCollection(org), slotID) }

func CustomersCollection(org string) string { return join(collOrganizations, org, collCustomers) }

func CustomerPath(org, customerID string) string { return join(CustomersCollection(org), customerID) }

func BookingsCollection(org string) string { return join(collOrganizations, org, collBookings) }

func BookingIdentityPath(org, secretKey string) string {
	return join(BookingsCollection(org), secretKey)
}

func BookedSlotsCollection(org, secretKey string) string {
	return join(BookingIdentityPath(org, secretKey), collBookedSlots)
}

func BookedSlotPath(org, secretKey, slotID string) string {
	return join(BookedSlotsCollection(org, secretKey), slotID)
}

func AttendedSlotsCollection(org, secretKey string) string {
	return join(BookingIdentityPath(org, secretKey), collAttendedSlots)
}

func AttendedSlotPath(org, secretKey, slotID string) string {
	return join(AttendedSlotsCollection(org, secretKey), slotID)
}

func SlotsByDayCollection(org string) string { return join(collOrganizations, org, collSlotsByDay) }

func SlotsByDayPath(org, month string) string { return join(SlotsByDayCollection(org), month) }

func AttendanceCollection(org string) string { return join(collOrganizations, org, collAttendance) }

func AttendancePath(org, slotID string) string { return join(AttendanceCollection(org), slotID) }

func BookingCountsCollection(org string) string {
	return join(collOrganizations, org, collBookingCounts)
}

func BookingCountsPath(org, month string) string { return join(BookingCountsCollection(org), month) }

func HandlerReceiptsCollection(org string) string {
	return join(collOrganizations, org, collHandlerReceipts)
}

func HandlerReceiptPath(org, handler, eventID string) string {
	return join(HandlerReceiptsCollection(org), handler+":"+eventID)
}
