package models

// DefaultWeapons is the built-in catalog written by `treeadmin seed-weapons`.
var DefaultWeapons = []Weapon{
	// Common
	{ID: 1, Name: "Hand Chop", Icon: "✋", Rarity: RarityCommon, Attack: 3, AttackInterval: 2200, GoldChance: 0.25, GoldMin: 3, GoldMax: 10, Description: "Your bare hand as an axe. Painful but effective."},
	{ID: 2, Name: "Cardboard Axe", Icon: "📦", Rarity: RarityCommon, Attack: 4, AttackInterval: 2100, GoldChance: 0.28, GoldMin: 4, GoldMax: 12, Description: "Light, recyclable, surprisingly handy."},
	{ID: 3, Name: "Phone Axe", Icon: "📱", Rarity: RarityCommon, Attack: 5, AttackInterval: 2000, GoldChance: 0.3, GoldMin: 5, GoldMax: 15, Description: "Chopping trees with a flagship phone."},
	{ID: 4, Name: "Noodle Fork Axe", Icon: "🍜", Rarity: RarityCommon, Attack: 4, AttackInterval: 2050, GoldChance: 0.27, GoldMin: 4, GoldMax: 13, Description: "Doubles as dinner cutlery."},
	{ID: 5, Name: "Keyboard Axe", Icon: "⌨️", Rarity: RarityCommon, Attack: 6, AttackInterval: 1950, GoldChance: 0.32, GoldMin: 6, GoldMax: 16, Description: "Clack clack. An engineer favourite."},

	// Rare
	{ID: 6, Name: "Skateboard Axe", Icon: "🛹", Rarity: RarityRare, Attack: 12, AttackInterval: 1700, GoldChance: 0.4, GoldMin: 10, GoldMax: 25, Description: "Kickflip into the trunk."},
	{ID: 7, Name: "Headphone Axe", Icon: "🎧", Rarity: RarityRare, Attack: 15, AttackInterval: 1600, GoldChance: 0.45, GoldMin: 12, GoldMax: 28, Description: "Wireless chopping, until the battery dies."},
	{ID: 8, Name: "Bubble Tea Axe", Icon: "🧋", Rarity: RarityRare, Attack: 14, AttackInterval: 1650, GoldChance: 0.42, GoldMin: 11, GoldMax: 26, Description: "Sip and swing."},
	{ID: 9, Name: "French Fry Axe", Icon: "🍟", Rarity: RarityRare, Attack: 13, AttackInterval: 1680, GoldChance: 0.4, GoldMin: 10, GoldMax: 24, Description: "Extremely high in calories."},
	{ID: 10, Name: "Gamepad Axe", Icon: "🎮", Rarity: RarityRare, Attack: 16, AttackInterval: 1550, GoldChance: 0.48, GoldMin: 13, GoldMax: 30, Description: "Combo chains never end."},

	// Epic
	{ID: 11, Name: "Meme Axe", Icon: "💀", Rarity: RarityEpic, Attack: 35, AttackInterval: 1200, GoldChance: 0.65, GoldMin: 25, GoldMax: 50, Description: "Viral damage."},
	{ID: 12, Name: "NFT Axe", Icon: "🖼️", Rarity: RarityEpic, Attack: 40, AttackInterval: 1100, GoldChance: 0.7, GoldMin: 28, GoldMax: 55, Description: "Certified on-chain, practically useless."},
	{ID: 13, Name: "Short Video Axe", Icon: "🎵", Rarity: RarityEpic, Attack: 38, AttackInterval: 1150, GoldChance: 0.68, GoldMin: 26, GoldMax: 52, Description: "Chops to the beat."},
	{ID: 14, Name: "Kitty Axe", Icon: "🐱", Rarity: RarityEpic, Attack: 42, AttackInterval: 1050, GoldChance: 0.72, GoldMin: 30, GoldMax: 58, Description: "Adorable and terrifying."},
	{ID: 15, Name: "Coffee Axe", Icon: "☕", Rarity: RarityEpic, Attack: 36, AttackInterval: 1180, GoldChance: 0.66, GoldMin: 24, GoldMax: 48, Description: "The more you chop, the less you sleep."},

	// Legendary
	{ID: 16, Name: "All-In Axe", Icon: "🔥", Rarity: RarityLegendary, Attack: 85, AttackInterval: 650, GoldChance: 0.85, GoldMin: 60, GoldMax: 100, Description: "Charge first, think later."},
	{ID: 17, Name: "One-Shot Axe", Icon: "✨", Rarity: RarityLegendary, Attack: 95, AttackInterval: 600, GoldChance: 0.9, GoldMin: 70, GoldMax: 120, Description: "Flattens everything."},
	{ID: 18, Name: "Vibe Axe", Icon: "🌊", Rarity: RarityLegendary, Attack: 88, AttackInterval: 630, GoldChance: 0.87, GoldMin: 65, GoldMax: 110, Description: "Maximum chill."},
	{ID: 19, Name: "Elegant Axe", Icon: "💅", Rarity: RarityLegendary, Attack: 92, AttackInterval: 610, GoldChance: 0.88, GoldMin: 68, GoldMax: 115, Description: "Chopping with poise."},
	{ID: 20, Name: "Rocket Axe", Icon: "🚀", Rarity: RarityLegendary, Attack: 100, AttackInterval: 580, GoldChance: 0.92, GoldMin: 75, GoldMax: 130, Description: "Absurdly strong. Not joking."},
	{ID: 21, Name: "Suspicious Axe", Icon: "😳", Rarity: RarityLegendary, Attack: 90, AttackInterval: 620, GoldChance: 0.89, GoldMin: 67, GoldMax: 112, Description: "Shady but strong."},
	{ID: 22, Name: "Serious Axe", Icon: "🎯", Rarity: RarityLegendary, Attack: 98, AttackInterval: 590, GoldChance: 0.91, GoldMin: 73, GoldMax: 125, Description: "It really is that strong."},
}
