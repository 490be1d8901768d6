package models

// EntityKind 标识触发实体的记录类别
type EntityKind string

const (
	EntityKindContact EntityKind = "contacts"
	EntityKindDeal    EntityKind = "deals"
)

// Fielded is the capability contract automation rules evaluate against.
// GetAttribute reports a named attribute and whether the entity exposes it;
// absent attributes are skipped by the evaluator rather than failing a rule.
type Fielded interface {
	GetAttribute(name string) (interface{}, bool)
	Kind() EntityKind
}

// GetAttribute 按名称暴露联系人的业务属性
func (c *Contact) GetAttribute(name string) (interface{}, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "user_id":
		return c.UserID, true
	case "name":
		return c.Name, true
	case "email":
		return c.Email, true
	case "phone":
		return c.Phone, true
	case "company":
		return c.Company, true
	case "title":
		return c.Title, true
	case "status":
		return c.Status, true
	case "source":
		return c.Source, true
	case "notes":
		return c.Notes, true
	case "assigned_to":
		return c.AssignedTo, true
	}
	return nil, false
}

func (c *Contact) Kind() EntityKind { return EntityKindContact }

// GetAttribute 按名称暴露商机的业务属性
func (d *Deal) GetAttribute(name string) (interface{}, bool) {
	switch name {
	case "id":
		return d.ID, true
	case "contact_id":
		return d.ContactID, true
	case "title":
		return d.Title, true
	case "value":
		return d.Value, true
	case "currency":
		return d.Currency, true
	case "stage":
		return d.Stage, true
	case "probability":
		return d.Probability, true
	case "notes":
		return d.Notes, true
	}
	return nil, false
}

func (d *Deal) Kind() EntityKind { return EntityKindDeal }
