package profile

// Default lookup pools. Contents and ordering are frozen: reordering or
// editing any pool changes every synthesized field for every user.

var defaultFirstNames = []string{
	"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda",
	"David", "Elizabeth", "William", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
	"Thomas", "Sarah", "Charles", "Karen", "Christopher", "Lisa", "Daniel", "Nancy",
	"Matthew", "Betty", "Anthony", "Margaret", "Mark", "Sandra", "Donald", "Ashley",
	"Steven", "Kimberly", "Paul", "Emily", "Andrew", "Donna", "Joshua", "Michelle",
	"Kenneth", "Carol", "Kevin", "Amanda", "Brian", "Dorothy", "George", "Melissa",
	"Timothy", "Deborah", "Ronald", "Stephanie", "Edward", "Rebecca", "Jason", "Sharon",
	"Jeffrey", "Laura", "Ryan", "Cynthia", "Jacob", "Kathleen", "Gary", "Amy",
	"Nicholas", "Angela", "Eric", "Shirley", "Jonathan", "Anna", "Stephen", "Brenda",
	"Larry", "Pamela", "Justin", "Emma", "Scott", "Nicole", "Brandon", "Helen",
	"Benjamin", "Samantha", "Samuel", "Katherine", "Raymond", "Christine", "Gregory", "Debra",
	"Frank", "Rachel", "Alexander", "Carolyn", "Patrick", "Janet", "Jack", "Catherine",
	"Dennis", "Maria", "Jerry", "Heather",
}

var defaultLastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson", "Thomas",
	"Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson", "White",
	"Harris", "Sanchez", "Clark", "Ramirez", "Lewis", "Robinson", "Walker", "Young",
	"Allen", "King", "Wright", "Scott", "Torres", "Nguyen", "Hill", "Flores",
	"Green", "Adams", "Nelson", "Baker", "Hall", "Rivera", "Campbell", "Mitchell",
	"Carter", "Roberts", "Gomez", "Phillips", "Evans", "Turner", "Diaz", "Parker",
	"Cruz", "Edwards", "Collins", "Reyes", "Stewart", "Morris", "Morales", "Murphy",
	"Cook", "Rogers", "Gutierrez", "Ortiz", "Morgan", "Cooper", "Peterson", "Bailey",
	"Reed", "Kelly", "Howard", "Ramos", "Kim", "Cox", "Ward", "Richardson",
	"Watson", "Brooks", "Chavez", "Wood", "James", "Bennett", "Gray", "Mendoza",
	"Ruiz", "Hughes", "Price", "Alvarez", "Castillo", "Sanders", "Patel", "Myers",
	"Long", "Ross", "Foster", "Jimenez",
}

var defaultStreetNames = []string{
	"Main Street", "Oak Avenue", "Maple Boulevard", "Cedar Drive", "Elm Lane",
	"Pine Court", "Walnut Place", "Lake Way", "Hill Road", "Washington Circle",
	"Park Street", "River Avenue", "Spring Boulevard", "Church Drive", "High Lane",
	"Meadow Court", "Forest Place", "Sunset Way", "Valley Road", "Highland Circle",
	"Lincoln Street", "Willow Avenue", "Birch Boulevard", "Jackson Drive", "Madison Lane",
	"Franklin Court", "Jefferson Place", "Adams Way", "Monroe Road", "Cherry Circle",
	"Chestnut Street", "Dogwood Avenue", "Magnolia Boulevard", "Poplar Drive", "Sycamore Lane",
	"Linden Court", "Ash Place", "Beech Way", "Laurel Road", "Holly Circle",
	"Ivy Street", "Rose Avenue", "Vine Boulevard", "Peach Drive", "Olive Lane",
	"Market Court", "Broad Place", "Center Way", "Union Road", "Liberty Circle",
}

var defaultCities = []string{
	"New York", "Los Angeles", "Chicago", "Houston", "Phoenix",
	"Philadelphia", "San Antonio", "San Diego", "Dallas", "San Jose",
	"Austin", "Jacksonville", "Fort Worth", "Columbus", "Indianapolis",
	"Charlotte", "San Francisco", "Seattle", "Denver", "Nashville",
	"Oklahoma City", "El Paso", "Boston", "Portland", "Las Vegas",
	"Memphis", "Louisville", "Baltimore", "Milwaukee", "Albuquerque",
	"Tucson", "Fresno", "Sacramento", "Mesa", "Kansas City",
	"Atlanta", "Omaha", "Raleigh", "Miami", "Minneapolis",
	"Tampa", "New Orleans", "Cleveland", "Pittsburgh", "Cincinnati",
	"St. Louis", "Orlando", "Richmond", "Salt Lake City", "Honolulu",
}

var defaultStates = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
}
